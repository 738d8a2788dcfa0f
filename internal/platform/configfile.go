package platform

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/rflorenc/pan-deduper/internal/models"
)

const panoramaDevice = "localhost.localdomain"

type xmlConfig struct {
	XMLName  xml.Name    `xml:"config"`
	Shared   xmlObjects  `xml:"shared"`
	Devices  []xmlDevice `xml:"devices>entry"`
	Readonly []xmlDevice `xml:"readonly>devices>entry"`
}

type xmlDevice struct {
	Name   string           `xml:"name,attr"`
	Groups []xmlDeviceGroup `xml:"device-group>entry"`
}

type xmlDeviceGroup struct {
	Name   string `xml:"name,attr"`
	Parent string `xml:"parent-dg"`
	xmlObjects
	PreRules  []xmlRule `xml:"pre-rulebase>security>rules>entry"`
	PostRules []xmlRule `xml:"post-rulebase>security>rules>entry"`
}

type xmlObjects struct {
	Addresses     []xmlAddress      `xml:"address>entry"`
	AddressGroups []xmlAddressGroup `xml:"address-group>entry"`
	Services      []xmlService      `xml:"service>entry"`
	ServiceGroups []xmlServiceGroup `xml:"service-group>entry"`
	Tags          []xmlTag          `xml:"tag>entry"`
}

type xmlAddress struct {
	Name        string   `xml:"name,attr"`
	IPNetmask   string   `xml:"ip-netmask"`
	IPRange     string   `xml:"ip-range"`
	FQDN        string   `xml:"fqdn"`
	IPWildcard  string   `xml:"ip-wildcard"`
	Description string   `xml:"description"`
	Tags        []string `xml:"tag>member"`
}

type xmlAddressGroup struct {
	Name        string   `xml:"name,attr"`
	Static      []string `xml:"static>member"`
	Dynamic     string   `xml:"dynamic>filter"`
	Description string   `xml:"description"`
	Tags        []string `xml:"tag>member"`
}

type xmlService struct {
	Name        string   `xml:"name,attr"`
	TCP         *xmlPort `xml:"protocol>tcp"`
	UDP         *xmlPort `xml:"protocol>udp"`
	Description string   `xml:"description"`
	Tags        []string `xml:"tag>member"`
}

type xmlPort struct {
	Port       string `xml:"port"`
	SourcePort string `xml:"source-port"`
	Override   *struct {
		No  *struct{} `xml:"no"`
		Yes *struct{} `xml:"yes"`
	} `xml:"override"`
}

type xmlServiceGroup struct {
	Name    string   `xml:"name,attr"`
	Members []string `xml:"members>member"`
	Tags    []string `xml:"tag>member"`
}

type xmlTag struct {
	Name     string `xml:"name,attr"`
	Color    string `xml:"color"`
	Comments string `xml:"comments"`
}

type xmlRule struct {
	Name         string   `xml:"name,attr"`
	Action       string   `xml:"action"`
	From         []string `xml:"from>member"`
	Sources      []string `xml:"source>member"`
	Destinations []string `xml:"destination>member"`
	Services     []string `xml:"service>member"`
	Applications []string `xml:"application>member"`
}

// ConfigFile is an object source backed by an exported Panorama
// configuration. It is read-only.
type ConfigFile struct {
	shared  xmlObjects
	groups  map[string]*xmlDeviceGroup
	order   []string
	parents map[string]string
}

// ParseConfigFile parses a Panorama configuration export. Unparsable input
// is a *models.SourceDataError that quotes the offending line.
func ParseConfigFile(data []byte) (*ConfigFile, error) {
	var cfg xmlConfig
	if err := xml.Unmarshal(data, &cfg); err != nil {
		return nil, &models.SourceDataError{Unit: "config", Fragment: offendingLine(data, err), Err: fmt.Errorf("invalid XML file: %w", err)}
	}

	cf := &ConfigFile{shared: cfg.Shared, groups: map[string]*xmlDeviceGroup{}, parents: map[string]string{}}
	for i := range cfg.Devices {
		if cfg.Devices[i].Name != panoramaDevice {
			continue
		}
		for j := range cfg.Devices[i].Groups {
			g := &cfg.Devices[i].Groups[j]
			if g.Name == "" {
				return nil, &models.SourceDataError{Unit: "config", Fragment: "device-group entry without name", Err: errNoName}
			}
			cf.groups[g.Name] = g
			cf.order = append(cf.order, g.Name)
		}
	}
	for _, d := range cfg.Readonly {
		if d.Name != panoramaDevice {
			continue
		}
		for _, g := range d.Groups {
			if g.Parent != "" && g.Parent != models.SharedUnit {
				cf.parents[g.Name] = g.Parent
			}
		}
	}
	return cf, nil
}

func offendingLine(data []byte, err error) string {
	var syn *xml.SyntaxError
	if !errors.As(err, &syn) || syn.Line < 1 {
		return ""
	}
	lines := bytes.Split(data, []byte("\n"))
	if syn.Line > len(lines) {
		return ""
	}
	return fmt.Sprintf("line %d: %s", syn.Line, truncate(strings.TrimSpace(string(lines[syn.Line-1])), 200))
}

// FetchUnits returns the device groups in document order.
func (c *ConfigFile) FetchUnits(ctx context.Context) ([]models.Unit, error) {
	units := make([]models.Unit, len(c.order))
	for i, n := range c.order {
		units[i] = models.Unit{Name: n, Parent: c.parents[n]}
	}
	return units, nil
}

func (c *ConfigFile) objects(unit string) *xmlObjects {
	if unit == models.SharedUnit {
		return &c.shared
	}
	if g, ok := c.groups[unit]; ok {
		return &g.xmlObjects
	}
	return nil
}

// FetchObjects returns the objects of kind defined in unit. Unknown units
// have no objects.
func (c *ConfigFile) FetchObjects(ctx context.Context, kind models.Kind, unit string) ([]models.Object, error) {
	src := c.objects(unit)
	if src == nil {
		return nil, nil
	}
	var objs []models.Object
	switch kind {
	case models.KindAddress:
		for _, a := range src.Addresses {
			objs = append(objs, a.object(unit))
		}
	case models.KindAddressGroup:
		for _, g := range src.AddressGroups {
			objs = append(objs, g.object(unit))
		}
	case models.KindService:
		for _, s := range src.Services {
			objs = append(objs, s.object(unit))
		}
	case models.KindServiceGroup:
		for _, g := range src.ServiceGroups {
			objs = append(objs, g.object(unit))
		}
	case models.KindTag:
		for _, t := range src.Tags {
			objs = append(objs, t.object(unit))
		}
	default:
		return nil, fmt.Errorf("unsupported object kind %q", kind)
	}
	for _, o := range objs {
		if o.Name == "" {
			return nil, &models.SourceDataError{Unit: unit, Kind: kind, Fragment: fmt.Sprintf("%+v", o), Err: errNoName}
		}
	}
	return objs, nil
}

// FetchObject returns the named object in unit, or nil.
func (c *ConfigFile) FetchObject(ctx context.Context, kind models.Kind, unit, name string) (*models.Object, error) {
	objs, err := c.FetchObjects(ctx, kind, unit)
	if err != nil {
		return nil, err
	}
	for i := range objs {
		if objs[i].Name == name {
			return &objs[i], nil
		}
	}
	return nil, nil
}

// FetchSecurityRules returns the rules of a device group rulebase.
func (c *ConfigFile) FetchSecurityRules(ctx context.Context, unit, rulebase string) ([]models.SecurityRule, error) {
	g, ok := c.groups[unit]
	if !ok {
		return nil, nil
	}
	var src []xmlRule
	switch rulebase {
	case "pre-rulebase":
		src = g.PreRules
	case "post-rulebase":
		src = g.PostRules
	default:
		return nil, fmt.Errorf("unknown rulebase %q", rulebase)
	}
	rules := make([]models.SecurityRule, 0, len(src))
	for _, r := range src {
		if r.Name == "" {
			return nil, &models.SourceDataError{Unit: unit, Fragment: fmt.Sprintf("%+v", r), Err: errNoName}
		}
		rules = append(rules, models.SecurityRule{
			Name: r.Name, Unit: unit, OwningUnit: unit, Action: r.Action,
			From: r.From, Sources: r.Sources, Destinations: r.Destinations,
			Services: r.Services, Applications: r.Applications,
		})
	}
	return rules, nil
}

func (a xmlAddress) object(unit string) models.Object {
	o := models.Object{Name: a.Name, Kind: models.KindAddress, OwningUnit: unit, OriginUnit: unit, Description: a.Description, Tags: a.Tags}
	switch {
	case a.IPNetmask != "":
		o.Address = &models.Address{Type: "ip-netmask", Value: a.IPNetmask}
	case a.IPRange != "":
		o.Address = &models.Address{Type: "ip-range", Value: a.IPRange}
	case a.FQDN != "":
		o.Address = &models.Address{Type: "fqdn", Value: a.FQDN}
	case a.IPWildcard != "":
		o.Address = &models.Address{Type: "ip-wildcard", Value: a.IPWildcard}
	}
	return o
}

func (g xmlAddressGroup) object(unit string) models.Object {
	return models.Object{
		Name: g.Name, Kind: models.KindAddressGroup, OwningUnit: unit, OriginUnit: unit,
		Description: g.Description, Tags: g.Tags,
		AddressGroup: &models.AddressGroup{Static: g.Static, DynamicFilter: g.Dynamic},
	}
}

func (s xmlService) object(unit string) models.Object {
	o := models.Object{Name: s.Name, Kind: models.KindService, OwningUnit: unit, OriginUnit: unit, Description: s.Description, Tags: s.Tags}
	proto, port := "tcp", s.TCP
	if port == nil {
		proto, port = "udp", s.UDP
	}
	o.Service = &models.Service{}
	if port != nil {
		o.Service = &models.Service{Protocol: proto, Port: port.Port, SourcePort: port.SourcePort}
		if port.Override != nil {
			switch {
			case port.Override.No != nil:
				o.Service.Override = "no"
			case port.Override.Yes != nil:
				o.Service.Override = "yes"
			}
		}
	}
	return o
}

func (g xmlServiceGroup) object(unit string) models.Object {
	return models.Object{
		Name: g.Name, Kind: models.KindServiceGroup, OwningUnit: unit, OriginUnit: unit, Tags: g.Tags,
		ServiceGroup: &models.ServiceGroup{Members: g.Members},
	}
}

func (t xmlTag) object(unit string) models.Object {
	return models.Object{
		Name: t.Name, Kind: models.KindTag, OwningUnit: unit, OriginUnit: unit,
		Tag: &models.TagValue{Color: t.Color, Comments: t.Comments},
	}
}
