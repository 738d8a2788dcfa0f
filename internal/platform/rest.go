package platform

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/rflorenc/pan-deduper/internal/models"
)

// restEndpoints maps object kinds to REST API resource paths.
var restEndpoints = map[models.Kind]string{
	models.KindAddress:      "Objects/Addresses",
	models.KindAddressGroup: "Objects/AddressGroups",
	models.KindService:      "Objects/Services",
	models.KindServiceGroup: "Objects/ServiceGroups",
	models.KindTag:          "Objects/Tags",
}

var rulePaths = map[string]string{
	"pre-rulebase":  "Policies/SecurityPreRules",
	"post-rulebase": "Policies/SecurityPostRules",
}

const (
	deviceGroupsPath = "Panorama/DeviceGroups"
	parentsXPath     = "/config/readonly/devices/entry[@name='localhost.localdomain']/device-group"
	codeSuccess      = "20"
	codeNotUnique    = "5"
	codeNotPresent   = "7"
)

// restCode accepts codes encoded as either JSON strings or numbers.
type restCode string

func (c *restCode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = restCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = restCode(n.String())
	return nil
}

// restResponse is the REST API reply envelope. Successful replies carry
// "@code"; errors carry "code", "message" and "details".
type restResponse struct {
	Status  string   `json:"@status"`
	Code    restCode `json:"@code"`
	ErrCode restCode `json:"code"`
	Message string   `json:"message"`
	Result  struct {
		Count restCode         `json:"@count"`
		Entry []map[string]any `json:"entry"`
	} `json:"result"`
	Details []struct {
		Causes []struct {
			Description string `json:"description"`
		} `json:"causes"`
	} `json:"details"`
}

func (r *restResponse) code() string {
	if r.Code != "" {
		return string(r.Code)
	}
	return string(r.ErrCode)
}

func (r *restResponse) message() string {
	parts := []string{}
	if r.Message != "" {
		parts = append(parts, r.Message)
	}
	for _, d := range r.Details {
		for _, c := range d.Causes {
			if c.Description != "" {
				parts = append(parts, c.Description)
			}
		}
	}
	return strings.Join(parts, ": ")
}

// REST talks to Panorama through its REST API.
type REST struct {
	client *Client
	conn   *models.Connection
	log    *zap.Logger
}

// NewREST creates a REST backend. Call Login before use.
func NewREST(conn *models.Connection, log *zap.Logger) *REST {
	return &REST{client: NewClient(conn), conn: conn, log: log}
}

// Login obtains an API key and, when no REST version was configured,
// detects it from the running software version.
func (r *REST) Login(ctx context.Context) error {
	if err := r.client.Login(ctx); err != nil {
		return err
	}
	if r.conn.RESTVersion != "" {
		return nil
	}
	version, err := DiscoverRESTVersion(ctx, r.client)
	if err != nil {
		r.log.Warn("REST version discovery failed, using default", zap.String("prefix", r.client.prefix), zap.Error(err))
		return nil
	}
	r.conn.RESTVersion = version
	r.client.prefix = r.conn.RESTPrefix()
	r.log.Info("detected REST API version", zap.String("version", version))
	return nil
}

func locationParams(unit string) url.Values {
	if unit == models.SharedUnit {
		return url.Values{"location": {"shared"}}
	}
	return url.Values{"location": {"device-group"}, "device-group": {unit}}
}

func (r *REST) list(ctx context.Context, path string, params url.Values) ([]map[string]any, error) {
	var resp restResponse
	if err := r.client.GetJSON(ctx, path, params, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "" && resp.Status != "success" {
		return nil, fmt.Errorf("GET %s: %s", path, resp.message())
	}
	return resp.Result.Entry, nil
}

// FetchUnits returns every device group. Parents are read from the
// readonly configuration; failure to read them is not fatal.
func (r *REST) FetchUnits(ctx context.Context) ([]models.Unit, error) {
	entries, err := r.list(ctx, deviceGroupsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("listing device groups: %w", err)
	}
	if len(entries) == 0 {
		return nil, &models.SourceDataError{Unit: "panorama", Err: fmt.Errorf("no device groups found")}
	}
	parents, err := r.fetchParents(ctx)
	if err != nil {
		r.log.Warn("could not read device group hierarchy", zap.Error(err))
	}
	units := make([]models.Unit, 0, len(entries))
	for _, e := range entries {
		name := stringField(e, "@name")
		units = append(units, models.Unit{Name: name, Parent: parents[name]})
	}
	return units, nil
}

type parentsResponse struct {
	Status  string `xml:"status,attr"`
	Entries []struct {
		Name   string `xml:"name,attr"`
		Parent string `xml:"parent-dg"`
	} `xml:"result>device-group>entry"`
}

func (r *REST) fetchParents(ctx context.Context) (map[string]string, error) {
	params := url.Values{"type": {"config"}, "action": {"get"}, "xpath": {parentsXPath}}
	body, err := r.client.do(ctx, http.MethodGet, "/api/", params, nil)
	if err != nil {
		return nil, err
	}
	return ParseParents(body)
}

// ParseParents reads the parent-dg of every device group from a config get
// reply. Top-level groups map to "".
func ParseParents(body []byte) (map[string]string, error) {
	var resp parentsResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing device group hierarchy: %w", err)
	}
	if len(resp.Entries) == 0 {
		return nil, fmt.Errorf("no device groups in hierarchy reply")
	}
	parents := make(map[string]string, len(resp.Entries))
	for _, e := range resp.Entries {
		if e.Parent == models.SharedUnit {
			e.Parent = ""
		}
		parents[e.Name] = e.Parent
	}
	return parents, nil
}

// FetchObjects returns all objects of kind visible from unit.
func (r *REST) FetchObjects(ctx context.Context, kind models.Kind, unit string) ([]models.Object, error) {
	path, ok := restEndpoints[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported object kind %q", kind)
	}
	entries, err := r.list(ctx, path, locationParams(unit))
	if err != nil {
		return nil, err
	}
	objs := make([]models.Object, 0, len(entries))
	for _, e := range entries {
		obj, err := ObjectFromWire(kind, unit, e)
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// FetchObject returns the named object in unit, or nil if it is absent.
func (r *REST) FetchObject(ctx context.Context, kind models.Kind, unit, name string) (*models.Object, error) {
	params := locationParams(unit)
	params.Set("name", name)
	var resp restResponse
	body, status, err := r.client.send(ctx, http.MethodGet, r.client.prefix+restEndpoints[kind], params, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if resp.code() == codeNotPresent || len(resp.Result.Entry) == 0 {
		return nil, nil
	}
	obj, err := ObjectFromWire(kind, unit, resp.Result.Entry[0])
	if err != nil {
		return nil, err
	}
	return &obj, nil
}

// CreateObject creates obj in unit.
func (r *REST) CreateObject(ctx context.Context, obj models.Object, unit string) Result {
	params := locationParams(unit)
	params.Set("name", obj.Name)
	payload := map[string]any{"entry": ObjectToWire(obj)}
	body, _, err := r.client.Post(ctx, restEndpoints[obj.Kind], params, payload)
	return parseResult(body, err)
}

// DeleteObject removes the named object from unit.
func (r *REST) DeleteObject(ctx context.Context, kind models.Kind, name, unit string) Result {
	params := locationParams(unit)
	params.Set("name", name)
	body, _, err := r.client.Delete(ctx, restEndpoints[kind], params)
	return parseResult(body, err)
}

func parseResult(body []byte, err error) Result {
	if err != nil {
		return Result{Message: err.Error()}
	}
	var resp restResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{Message: "unparsable reply: " + truncate(string(body), 200)}
	}
	res := Result{Code: resp.code(), Message: resp.message()}
	res.OK = res.Code == codeSuccess
	if !res.OK && (res.Code == codeNotUnique || strings.Contains(strings.ToLower(res.Message), "already exists")) {
		res.AlreadyExists = true
	}
	return res
}

// FetchSecurityRules returns the security rules of a device group rulebase.
func (r *REST) FetchSecurityRules(ctx context.Context, unit, rulebase string) ([]models.SecurityRule, error) {
	path, ok := rulePaths[rulebase]
	if !ok {
		return nil, fmt.Errorf("unknown rulebase %q", rulebase)
	}
	entries, err := r.list(ctx, path, locationParams(unit))
	if err != nil {
		return nil, err
	}
	rules := make([]models.SecurityRule, 0, len(entries))
	for _, e := range entries {
		name := stringField(e, "@name")
		if name == "" {
			frag, _ := json.Marshal(e)
			return nil, &models.SourceDataError{Unit: unit, Fragment: string(frag), Err: errNoName}
		}
		rules = append(rules, models.SecurityRule{
			Name:         name,
			Unit:         unit,
			OwningUnit:   owningUnit(e),
			Action:       stringField(e, "action"),
			From:         memberList(e, "from"),
			Sources:      memberList(e, "source"),
			Destinations: memberList(e, "destination"),
			Services:     memberList(e, "service"),
			Applications: memberList(e, "application"),
		})
	}
	return rules, nil
}
