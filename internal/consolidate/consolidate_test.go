package consolidate

import (
	"context"
	"sort"
	"sync"

	"github.com/rflorenc/pan-deduper/internal/dedupe"
	"github.com/rflorenc/pan-deduper/internal/models"
	"github.com/rflorenc/pan-deduper/internal/platform"
)

// memPanorama is an in-memory Source and Pusher.
type memPanorama struct {
	mu         sync.Mutex
	objects    map[string]models.Object
	failCreate map[string]bool
	calls      []string
}

func newMem(objs ...models.Object) *memPanorama {
	m := &memPanorama{objects: map[string]models.Object{}, failCreate: map[string]bool{}}
	for _, o := range objs {
		m.objects[memKey(o.Kind, o.OwningUnit, o.Name)] = o
	}
	return m
}

func memKey(kind models.Kind, unit, name string) string {
	return string(kind) + "/" + unit + "/" + name
}

func (m *memPanorama) FetchUnits(ctx context.Context) ([]models.Unit, error) { return nil, nil }

func (m *memPanorama) FetchObjects(ctx context.Context, kind models.Kind, unit string) ([]models.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Object
	for _, o := range m.objects {
		if o.Kind == kind && o.OwningUnit == unit {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memPanorama) FetchObject(ctx context.Context, kind models.Kind, unit, name string) (*models.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[memKey(kind, unit, name)]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *memPanorama) CreateObject(ctx context.Context, obj models.Object, unit string) platform.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "create "+memKey(obj.Kind, unit, obj.Name))
	if m.failCreate[string(obj.Kind)+"/"+obj.Name] {
		return platform.Result{Code: "12", Message: "Invalid Object"}
	}
	k := memKey(obj.Kind, unit, obj.Name)
	if _, ok := m.objects[k]; ok {
		return platform.Result{AlreadyExists: true, Code: "5", Message: "Object Not Unique"}
	}
	m.objects[k] = obj.Relocate(unit)
	return platform.Result{OK: true}
}

func (m *memPanorama) DeleteObject(ctx context.Context, kind models.Kind, name, unit string) platform.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "delete "+memKey(kind, unit, name))
	k := memKey(kind, unit, name)
	if _, ok := m.objects[k]; !ok {
		return platform.Result{Code: "7", Message: "Object Not Present"}
	}
	delete(m.objects, k)
	return platform.Result{OK: true}
}

func (m *memPanorama) has(kind models.Kind, unit, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[memKey(kind, unit, name)]
	return ok
}

func addr(name, unit, value string, tags ...string) models.Object {
	return models.Object{
		Name: name, Kind: models.KindAddress, OwningUnit: unit, OriginUnit: unit, Tags: tags,
		Address: &models.Address{Type: "ip-netmask", Value: value},
	}
}

func addrGroup(name, unit string, members ...string) models.Object {
	return models.Object{
		Name: name, Kind: models.KindAddressGroup, OwningUnit: unit, OriginUnit: unit,
		AddressGroup: &models.AddressGroup{Static: members},
	}
}

func tag(name, unit, color string) models.Object {
	return models.Object{
		Name: name, Kind: models.KindTag, OwningUnit: unit, OriginUnit: unit,
		Tag: &models.TagValue{Color: color},
	}
}

// snapshotOf groups objects by kind and unit in the order given.
func snapshotOf(objs ...models.Object) *dedupe.Snapshot {
	snap := &dedupe.Snapshot{
		Units:  map[models.Kind][]dedupe.UnitObjects{},
		Shared: map[models.Kind][]models.Object{},
	}
	for _, o := range objs {
		if o.OwningUnit == models.SharedUnit {
			snap.Shared[o.Kind] = append(snap.Shared[o.Kind], o)
			continue
		}
		units := snap.Units[o.Kind]
		found := false
		for i := range units {
			if units[i].Unit == o.OwningUnit {
				units[i].Objects = append(units[i].Objects, o)
				found = true
			}
		}
		if !found {
			units = append(units, dedupe.UnitObjects{Unit: o.OwningUnit, Objects: []models.Object{o}})
		}
		snap.Units[o.Kind] = units
	}
	return snap
}

func phaseNames(p *Plan) []string {
	var out []string
	for _, ph := range p.Phases {
		out = append(out, ph.Name)
	}
	return out
}

func stepNames(batch []Step) []string {
	var out []string
	for _, s := range batch {
		out = append(out, string(s.Op)+" "+s.Name+"@"+s.Unit)
	}
	return out
}
