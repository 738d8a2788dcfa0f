package platform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rflorenc/pan-deduper/internal/models"
)

func newTestREST(ts *httptest.Server) *REST {
	return &REST{
		client: newTestClient(ts),
		conn:   &models.Connection{RESTVersion: "v10.1"},
		log:    zap.NewNop(),
	}
}

func TestREST_FetchObjects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/restapi/v10.1/Objects/Addresses", r.URL.Path)
		assert.Equal(t, "device-group", r.URL.Query().Get("location"))
		assert.Equal(t, "dg1", r.URL.Query().Get("device-group"))
		w.Write([]byte(`{"@status":"success","@code":"19","result":{"@total-count":"2","@count":"2","entry":[
			{"@name":"web","@location":"device-group","@device-group":"dg1","@loc":"dg1","ip-netmask":"10.0.0.1/32","tag":{"member":["prod"]}},
			{"@name":"inherited","@location":"device-group","@device-group":"dg1","@loc":"parent","fqdn":"a.example.com"}
		]}}`))
	}))
	defer ts.Close()

	objs, err := newTestREST(ts).FetchObjects(context.Background(), models.KindAddress, "dg1")
	require.NoError(t, err)
	require.Len(t, objs, 2)

	assert.Equal(t, "web", objs[0].Name)
	assert.Equal(t, &models.Address{Type: "ip-netmask", Value: "10.0.0.1/32"}, objs[0].Address)
	assert.Equal(t, []string{"prod"}, objs[0].Tags)
	assert.True(t, objs[0].Owned())
	assert.Equal(t, "parent", objs[1].OwningUnit)
	assert.False(t, objs[1].Owned())
}

func TestREST_FetchObjects_Shared(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shared", r.URL.Query().Get("location"))
		assert.Empty(t, r.URL.Query().Get("device-group"))
		w.Write([]byte(`{"@status":"success","@code":"19","result":{"@count":"0"}}`))
	}))
	defer ts.Close()

	objs, err := newTestREST(ts).FetchObjects(context.Background(), models.KindService, models.SharedUnit)
	require.NoError(t, err)
	assert.Empty(t, objs)
}

func TestREST_FetchObjects_MissingName(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"@status":"success","result":{"@count":"1","entry":[{"fqdn":"x.example.com"}]}}`))
	}))
	defer ts.Close()

	_, err := newTestREST(ts).FetchObjects(context.Background(), models.KindAddress, "dg1")
	var srcErr *models.SourceDataError
	require.True(t, errors.As(err, &srcErr))
	assert.Equal(t, "dg1", srcErr.Unit)
	assert.Contains(t, srcErr.Fragment, "x.example.com")
}

func TestREST_FetchUnits(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/restapi/v10.1/Panorama/DeviceGroups":
			w.Write([]byte(`{"@status":"success","result":{"@count":"2","entry":[{"@name":"All-Devices"},{"@name":"branch"}]}}`))
		case "/api/":
			assert.Equal(t, "config", r.URL.Query().Get("type"))
			w.Write([]byte(`<response status="success"><result><device-group>
				<entry name="All-Devices"><parent-dg>shared</parent-dg></entry>
				<entry name="branch"><parent-dg>All-Devices</parent-dg></entry>
			</device-group></result></response>`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	units, err := newTestREST(ts).FetchUnits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Unit{{Name: "All-Devices"}, {Name: "branch", Parent: "All-Devices"}}, units)
}

func TestREST_FetchUnits_None(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"@status":"success","result":{"@count":"0"}}`))
	}))
	defer ts.Close()

	_, err := newTestREST(ts).FetchUnits(context.Background())
	var srcErr *models.SourceDataError
	assert.True(t, errors.As(err, &srcErr))
}

func TestREST_FetchObject_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "blue", r.URL.Query().Get("name"))
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":7,"message":"Object Not Present"}`))
	}))
	defer ts.Close()

	obj, err := newTestREST(ts).FetchObject(context.Background(), models.KindTag, "dg1", "blue")
	require.NoError(t, err)
	assert.Nil(t, obj)
}

func TestREST_CreateObject(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "All-Devices", r.URL.Query().Get("device-group"))
		assert.Equal(t, "tcp-443", r.URL.Query().Get("name"))
		data, _ := io.ReadAll(r.Body)
		var body map[string]map[string]any
		require.NoError(t, json.Unmarshal(data, &body))
		entry := body["entry"]
		assert.Equal(t, "tcp-443", entry["@name"])
		assert.NotContains(t, entry, "@loc")
		assert.Equal(t, map[string]any{"tcp": map[string]any{"port": "443"}}, entry["protocol"])
		w.Write([]byte(`{"@status":"success","@code":"20","msg":"command succeeded"}`))
	}))
	defer ts.Close()

	obj := models.Object{Name: "tcp-443", Kind: models.KindService, OwningUnit: "dg1", Service: &models.Service{Protocol: "tcp", Port: "443"}}
	res := newTestREST(ts).CreateObject(context.Background(), obj, "All-Devices")
	assert.True(t, res.OK)
	assert.Equal(t, "20", res.Code)
}

func TestREST_CreateObject_AlreadyExists(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":5,"message":"Object Not Unique","details":[{"@type":"CauseInfo","causes":[{"code":12,"module":"panui_mgmt","description":"tcp-443 already exists"}]}]}`))
	}))
	defer ts.Close()

	obj := models.Object{Name: "tcp-443", Kind: models.KindService, Service: &models.Service{Protocol: "tcp", Port: "443"}}
	res := newTestREST(ts).CreateObject(context.Background(), obj, "All-Devices")
	assert.False(t, res.OK)
	assert.True(t, res.AlreadyExists)
	assert.Equal(t, "5", res.Code)
	assert.Equal(t, "Object Not Unique: tcp-443 already exists", res.Message)

	err := res.Err("create", models.KindService, "tcp-443", "All-Devices")
	var stepErr *models.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "5", stepErr.Code)
}

func TestREST_DeleteObject(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/restapi/v10.1/Objects/AddressGroups", r.URL.Path)
		w.Write([]byte(`{"@status":"success","@code":"20"}`))
	}))
	defer ts.Close()

	res := newTestREST(ts).DeleteObject(context.Background(), models.KindAddressGroup, "grp", "dg2")
	assert.True(t, res.OK)
	assert.NoError(t, res.Err("delete", models.KindAddressGroup, "grp", "dg2"))
}

func TestREST_FetchSecurityRules(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/restapi/v10.1/Policies/SecurityPreRules", r.URL.Path)
		w.Write([]byte(`{"@status":"success","result":{"@count":"1","entry":[{"@name":"r1","@loc":"dg1",
			"action":"allow","from":{"member":["trust"]},"source":{"member":["10.0.0.1"]},
			"destination":{"member":["any"]},"service":{"member":["application-default"]},"application":{"member":["ssl"]}}]}}`))
	}))
	defer ts.Close()

	rules, err := newTestREST(ts).FetchSecurityRules(context.Background(), "dg1", "pre-rulebase")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, models.SecurityRule{
		Name: "r1", Unit: "dg1", OwningUnit: "dg1", Action: "allow",
		From: []string{"trust"}, Sources: []string{"10.0.0.1"}, Destinations: []string{"any"},
		Services: []string{"application-default"}, Applications: []string{"ssl"},
	}, rules[0])

	_, err = newTestREST(ts).FetchSecurityRules(context.Background(), "dg1", "default-rulebase")
	assert.Error(t, err)
}
