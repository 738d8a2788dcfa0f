package platform

import (
	"errors"
	"fmt"
	"testing"

	pgerrs "github.com/PaloAltoNetworks/pango/errors"
	"github.com/PaloAltoNetworks/pango/objs/addr"
	"github.com/PaloAltoNetworks/pango/objs/srvc"
	"github.com/stretchr/testify/assert"

	"github.com/rflorenc/pan-deduper/internal/models"
)

func TestPangoAddressMapping(t *testing.T) {
	e := addr.Entry{Name: "web", Type: addr.IpNetmask, Value: "10.0.0.1/32", Description: "front", Tags: []string{"prod"}}
	obj := fromAddr(e, "dg1")
	assert.Equal(t, models.KindAddress, obj.Kind)
	assert.Equal(t, "dg1", obj.OwningUnit)
	assert.Equal(t, &models.Address{Type: "ip-netmask", Value: "10.0.0.1/32"}, obj.Address)
	assert.Equal(t, e, toAddr(obj))
}

func TestPangoServiceMapping(t *testing.T) {
	e := srvc.Entry{Name: "tcp-443", Protocol: "tcp", DestinationPort: "443", SourcePort: "1024-65535"}
	obj := fromSrvc(e, "dg2")
	assert.Equal(t, &models.Service{Protocol: "tcp", Port: "443", SourcePort: "1024-65535"}, obj.Service)
	assert.Equal(t, e, toSrvc(obj))
}

func TestPangoGroupAndTagMapping(t *testing.T) {
	grp := models.Object{Name: "svc-grp", Kind: models.KindServiceGroup, ServiceGroup: &models.ServiceGroup{Members: []string{"a", "b"}}}
	assert.Equal(t, []string{"a", "b"}, toSrvcGrp(grp).Services)

	tag := models.Object{Name: "prod", Kind: models.KindTag, Tag: &models.TagValue{Color: "color3", Comments: "production"}}
	e := toTag(tag)
	assert.Equal(t, "color3", e.Color)
	assert.Equal(t, "production", e.Comment)
	assert.Equal(t, tag.Tag, fromTag(e, "dg1").Tag)
}

func TestPanosResult(t *testing.T) {
	assert.Equal(t, Result{OK: true, Code: "20"}, panosResult(nil))

	res := panosResult(pgerrs.Panos{Code: 5, Msg: "Object not unique"})
	assert.False(t, res.OK)
	assert.True(t, res.AlreadyExists)
	assert.Equal(t, "5", res.Code)

	res = panosResult(errors.New("connection reset"))
	assert.False(t, res.OK)
	assert.Empty(t, res.Code)
	assert.Equal(t, "connection reset", res.Message)
}

func TestObjectNotFound(t *testing.T) {
	assert.True(t, objectNotFound(pgerrs.Panos{Code: 7, Msg: "Object not present"}))
	assert.True(t, objectNotFound(fmt.Errorf("fetching web: %w", pgerrs.Panos{Code: 7})))
	assert.False(t, objectNotFound(pgerrs.Panos{Code: 5, Msg: "Object not unique"}))
	assert.False(t, objectNotFound(errors.New("timeout")))
	assert.False(t, objectNotFound(nil))
}

func TestWithParents(t *testing.T) {
	units := withParents([]string{"All-Devices", "dg1", "dg2"}, map[string]string{
		"All-Devices": "shared",
		"dg1":         "All-Devices",
	})
	assert.Equal(t, []models.Unit{
		{Name: "All-Devices"},
		{Name: "dg1", Parent: "All-Devices"},
		{Name: "dg2"},
	}, units)

	assert.Equal(t, []models.Unit{{Name: "dg1"}}, withParents([]string{"dg1"}, nil))
}

func TestDeviceGroupArgument(t *testing.T) {
	assert.Equal(t, "shared", dg(models.SharedUnit))
	assert.Equal(t, "dg1", dg("dg1"))
}
