package platform

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/PaloAltoNetworks/pango"
	pgerrs "github.com/PaloAltoNetworks/pango/errors"
	"github.com/PaloAltoNetworks/pango/objs/addr"
	"github.com/PaloAltoNetworks/pango/objs/addrgrp"
	"github.com/PaloAltoNetworks/pango/objs/srvc"
	"github.com/PaloAltoNetworks/pango/objs/srvcgrp"
	"github.com/PaloAltoNetworks/pango/objs/tags"
	"go.uber.org/zap"

	"github.com/rflorenc/pan-deduper/internal/models"
)

// XMLAPI talks to Panorama through the XML API using pango. Unmodelled
// object fields are not carried by this backend.
type XMLAPI struct {
	pano *pango.Panorama
	log  *zap.Logger
}

// NewXMLAPI creates and initializes a pango Panorama client.
func NewXMLAPI(conn *models.Connection, log *zap.Logger) (*XMLAPI, error) {
	pano := &pango.Panorama{
		Client: pango.Client{
			Hostname:          conn.Host,
			Username:          conn.Username,
			Password:          conn.Password,
			ApiKey:            conn.APIKey,
			Port:              uint(conn.Port),
			VerifyCertificate: !conn.Insecure,
			Logging:           pango.LogQuiet,
		},
	}
	if err := pano.Initialize(); err != nil {
		return nil, fmt.Errorf("unable to connect to %s: %w", conn.Host, err)
	}
	return &XMLAPI{pano: pano, log: log}, nil
}

// dg maps a unit name onto the pango device group argument.
func dg(unit string) string {
	if unit == models.SharedUnit {
		return "shared"
	}
	return unit
}

// FetchUnits returns every device group with its parent.
func (x *XMLAPI) FetchUnits(ctx context.Context) ([]models.Unit, error) {
	names, err := x.pano.Panorama.DeviceGroup.GetList()
	if err != nil {
		return nil, fmt.Errorf("listing device groups: %w", err)
	}
	if len(names) == 0 {
		return nil, &models.SourceDataError{Unit: "panorama", Err: fmt.Errorf("no device groups found")}
	}
	parents, err := x.pano.Panorama.DeviceGroup.GetParents()
	if err != nil {
		x.log.Warn("could not read device group hierarchy", zap.Error(err))
	}
	return withParents(names, parents), nil
}

// withParents pairs device groups with their parents. Top-level groups,
// whose parent is shared, have none.
func withParents(names []string, parents map[string]string) []models.Unit {
	units := make([]models.Unit, len(names))
	for i, n := range names {
		p := parents[n]
		if p == models.SharedUnit {
			p = ""
		}
		units[i] = models.Unit{Name: n, Parent: p}
	}
	return units
}

// FetchObjects returns all objects of kind defined in unit.
func (x *XMLAPI) FetchObjects(ctx context.Context, kind models.Kind, unit string) ([]models.Object, error) {
	var objs []models.Object
	switch kind {
	case models.KindAddress:
		entries, err := x.pano.Objects.Address.GetAll(dg(unit))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			objs = append(objs, fromAddr(e, unit))
		}
	case models.KindAddressGroup:
		entries, err := x.pano.Objects.AddressGroup.GetAll(dg(unit))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			objs = append(objs, fromAddrGrp(e, unit))
		}
	case models.KindService:
		entries, err := x.pano.Objects.Services.GetAll(dg(unit))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			objs = append(objs, fromSrvc(e, unit))
		}
	case models.KindServiceGroup:
		entries, err := x.pano.Objects.ServiceGroup.GetAll(dg(unit))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			objs = append(objs, fromSrvcGrp(e, unit))
		}
	case models.KindTag:
		entries, err := x.pano.Objects.Tags.GetAll(dg(unit))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			objs = append(objs, fromTag(e, unit))
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

// FetchObject returns the named object in unit, or nil if it is absent.
func (x *XMLAPI) FetchObject(ctx context.Context, kind models.Kind, unit, name string) (*models.Object, error) {
	var (
		obj models.Object
		err error
	)
	switch kind {
	case models.KindAddress:
		var e addr.Entry
		if e, err = x.pano.Objects.Address.Get(dg(unit), name); err == nil {
			obj = fromAddr(e, unit)
		}
	case models.KindAddressGroup:
		var e addrgrp.Entry
		if e, err = x.pano.Objects.AddressGroup.Get(dg(unit), name); err == nil {
			obj = fromAddrGrp(e, unit)
		}
	case models.KindService:
		var e srvc.Entry
		if e, err = x.pano.Objects.Services.Get(dg(unit), name); err == nil {
			obj = fromSrvc(e, unit)
		}
	case models.KindServiceGroup:
		var e srvcgrp.Entry
		if e, err = x.pano.Objects.ServiceGroup.Get(dg(unit), name); err == nil {
			obj = fromSrvcGrp(e, unit)
		}
	case models.KindTag:
		var e tags.Entry
		if e, err = x.pano.Objects.Tags.Get(dg(unit), name); err == nil {
			obj = fromTag(e, unit)
		}
	default:
		return nil, fmt.Errorf("unsupported object kind %q", kind)
	}
	if objectNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &obj, nil
}

// CreateObject sets obj in unit.
func (x *XMLAPI) CreateObject(ctx context.Context, obj models.Object, unit string) Result {
	var err error
	switch obj.Kind {
	case models.KindAddress:
		err = x.pano.Objects.Address.Set(dg(unit), toAddr(obj))
	case models.KindAddressGroup:
		err = x.pano.Objects.AddressGroup.Set(dg(unit), toAddrGrp(obj))
	case models.KindService:
		err = x.pano.Objects.Services.Set(dg(unit), toSrvc(obj))
	case models.KindServiceGroup:
		err = x.pano.Objects.ServiceGroup.Set(dg(unit), toSrvcGrp(obj))
	case models.KindTag:
		err = x.pano.Objects.Tags.Set(dg(unit), toTag(obj))
	default:
		err = fmt.Errorf("unsupported object kind %q", obj.Kind)
	}
	return panosResult(err)
}

// DeleteObject removes the named object from unit.
func (x *XMLAPI) DeleteObject(ctx context.Context, kind models.Kind, name, unit string) Result {
	var err error
	switch kind {
	case models.KindAddress:
		err = x.pano.Objects.Address.Delete(dg(unit), name)
	case models.KindAddressGroup:
		err = x.pano.Objects.AddressGroup.Delete(dg(unit), name)
	case models.KindService:
		err = x.pano.Objects.Services.Delete(dg(unit), name)
	case models.KindServiceGroup:
		err = x.pano.Objects.ServiceGroup.Delete(dg(unit), name)
	case models.KindTag:
		err = x.pano.Objects.Tags.Delete(dg(unit), name)
	default:
		err = fmt.Errorf("unsupported object kind %q", kind)
	}
	return panosResult(err)
}

// FetchSecurityRules returns the security rules of a device group rulebase.
func (x *XMLAPI) FetchSecurityRules(ctx context.Context, unit, rulebase string) ([]models.SecurityRule, error) {
	entries, err := x.pano.Policies.Security.GetAll(dg(unit), rulebase)
	if err != nil {
		return nil, err
	}
	rules := make([]models.SecurityRule, 0, len(entries))
	for _, e := range entries {
		rules = append(rules, models.SecurityRule{
			Name:         e.Name,
			Unit:         unit,
			OwningUnit:   unit,
			Action:       e.Action,
			From:         e.SourceZones,
			Sources:      e.SourceAddresses,
			Destinations: e.DestinationAddresses,
			Services:     e.Services,
			Applications: e.Applications,
		})
	}
	return rules, nil
}

func objectNotFound(err error) bool {
	var pe pgerrs.Panos
	return errors.As(err, &pe) && pe.ObjectNotFound()
}

func panosResult(err error) Result {
	if err == nil {
		return Result{OK: true, Code: codeSuccess}
	}
	res := Result{Message: err.Error()}
	var pe pgerrs.Panos
	if errors.As(err, &pe) {
		res.Code = strconv.Itoa(pe.Code)
		res.AlreadyExists = res.Code == codeNotUnique
	}
	return res
}

func fromAddr(e addr.Entry, unit string) models.Object {
	return models.Object{
		Name: e.Name, Kind: models.KindAddress, OwningUnit: unit, OriginUnit: unit,
		Description: e.Description, Tags: e.Tags,
		Address: &models.Address{Type: e.Type, Value: e.Value},
	}
}

func toAddr(o models.Object) addr.Entry {
	e := addr.Entry{Name: o.Name, Description: o.Description, Tags: o.Tags}
	if o.Address != nil {
		e.Type, e.Value = o.Address.Type, o.Address.Value
	}
	return e
}

func fromAddrGrp(e addrgrp.Entry, unit string) models.Object {
	return models.Object{
		Name: e.Name, Kind: models.KindAddressGroup, OwningUnit: unit, OriginUnit: unit,
		Description: e.Description, Tags: e.Tags,
		AddressGroup: &models.AddressGroup{Static: e.StaticAddresses, DynamicFilter: e.DynamicMatch},
	}
}

func toAddrGrp(o models.Object) addrgrp.Entry {
	e := addrgrp.Entry{Name: o.Name, Description: o.Description, Tags: o.Tags}
	if o.AddressGroup != nil {
		e.StaticAddresses, e.DynamicMatch = o.AddressGroup.Static, o.AddressGroup.DynamicFilter
	}
	return e
}

func fromSrvc(e srvc.Entry, unit string) models.Object {
	return models.Object{
		Name: e.Name, Kind: models.KindService, OwningUnit: unit, OriginUnit: unit,
		Description: e.Description, Tags: e.Tags,
		Service: &models.Service{Protocol: e.Protocol, Port: e.DestinationPort, SourcePort: e.SourcePort},
	}
}

func toSrvc(o models.Object) srvc.Entry {
	e := srvc.Entry{Name: o.Name, Description: o.Description, Tags: o.Tags}
	if o.Service != nil {
		e.Protocol, e.DestinationPort, e.SourcePort = o.Service.Protocol, o.Service.Port, o.Service.SourcePort
	}
	return e
}

func fromSrvcGrp(e srvcgrp.Entry, unit string) models.Object {
	return models.Object{
		Name: e.Name, Kind: models.KindServiceGroup, OwningUnit: unit, OriginUnit: unit,
		Tags:         e.Tags,
		ServiceGroup: &models.ServiceGroup{Members: e.Services},
	}
}

func toSrvcGrp(o models.Object) srvcgrp.Entry {
	return srvcgrp.Entry{Name: o.Name, Services: o.Members(), Tags: o.Tags}
}

func fromTag(e tags.Entry, unit string) models.Object {
	return models.Object{
		Name: e.Name, Kind: models.KindTag, OwningUnit: unit, OriginUnit: unit,
		Tag: &models.TagValue{Color: e.Color, Comments: e.Comment},
	}
}

func toTag(o models.Object) tags.Entry {
	e := tags.Entry{Name: o.Name}
	if o.Tag != nil {
		e.Color, e.Comment = o.Tag.Color, o.Tag.Comments
	}
	return e
}
