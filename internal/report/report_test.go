package report

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/rflorenc/pan-deduper/internal/models"
	"github.com/rflorenc/pan-deduper/internal/render"
)

func newTestWriter(t *testing.T) (*Writer, afs.Service) {
	t.Helper()
	w := NewWriter("mem://localhost/" + strings.ReplaceAll(t.Name(), "/", "_"))
	w.now = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 5, 0, time.UTC) }
	return w, afs.New()
}

func TestWriteDuplicates(t *testing.T) {
	ctx := context.Background()
	w, fs := newTestWriter(t)

	findings := models.NewFindings()
	findings.Duplicates[models.KindAddress] = models.DuplicateRecord{"obj1": {"dg1", "dg2", "dg3"}}

	path, err := w.WriteDuplicates(ctx, findings)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "duplicates-2024-03-01-123005.json"), path)

	data, err := fs.DownloadWithURL(ctx, path)
	require.NoError(t, err)
	var got map[string]map[string][]string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, []string{"dg1", "dg2", "dg3"}, got["addresses"]["obj1"])
	assert.Contains(t, string(data), "\n    \"addresses\"")
}

func TestWriteNearDuplicates_SkipsEmpty(t *testing.T) {
	w, _ := newTestWriter(t)
	path, err := w.WriteNearDuplicates(context.Background(), models.NewFindings())
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestWriteCommands(t *testing.T) {
	ctx := context.Background()
	w, fs := newTestWriter(t)

	cmds := []render.Command{
		{Kind: models.KindAddress, Name: "obj1", Text: "set device-group All address 'obj1' ip-netmask 1.1.1.1/32"},
		{Kind: models.KindAddress, Name: "obj2", Text: "set device-group All address 'obj2' ip-netmask 2.2.2.2/32"},
		{Kind: models.KindAddress, Name: "obj1", Text: "delete device-group dg1 address 'obj1'"},
		{Kind: models.KindService, Name: "svc1", Text: "delete shared service 'svc1'"},
	}
	written, err := w.WriteCommands(ctx, cmds)
	require.NoError(t, err)
	require.Len(t, written, 3)

	all, err := fs.DownloadWithURL(ctx, written[0])
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{cmds[0].Text, cmds[1].Text, cmds[2].Text, cmds[3].Text}, "\n")+"\n", string(all))

	assert.True(t, strings.HasSuffix(written[1], "set-commands-addresses.txt"))
	grouped, err := fs.DownloadWithURL(ctx, written[1])
	require.NoError(t, err)
	assert.Equal(t, cmds[0].Text+"\n"+cmds[2].Text+"\n\n"+cmds[1].Text+"\n\n", string(grouped))
}

func TestWriteRuleCommands(t *testing.T) {
	ctx := context.Background()
	w, fs := newTestWriter(t)
	written, err := w.WriteRuleCommands(ctx, []string{"dg1"}, map[string][]string{
		"dg1": {"--------- PRE-RULEBASE ---------", "--------- POST-RULEBASE ---------"},
	})
	require.NoError(t, err)
	require.Len(t, written, 1)
	assert.True(t, strings.HasSuffix(written[0], "set-commands-sec_rules-dg1.txt"))
	data, err := fs.DownloadWithURL(ctx, written[0])
	require.NoError(t, err)
	assert.Equal(t, "--------- PRE-RULEBASE ---------\n--------- POST-RULEBASE ---------\n", string(data))
}
