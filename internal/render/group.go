package render

import "github.com/rflorenc/pan-deduper/internal/models"

// Bunch is every command touching one object.
type Bunch struct {
	Name     string    `json:"name"`
	Commands []Command `json:"commands"`
}

// Group collects commands per kind and then per object name, both in the
// order they first appear.
func Group(cmds []Command) (kinds []models.Kind, groups map[models.Kind][]Bunch) {
	groups = make(map[models.Kind][]Bunch)
	index := make(map[models.Kind]map[string]int)
	for _, c := range cmds {
		if _, ok := index[c.Kind]; !ok {
			index[c.Kind] = make(map[string]int)
			kinds = append(kinds, c.Kind)
		}
		i, ok := index[c.Kind][c.Name]
		if !ok {
			i = len(groups[c.Kind])
			index[c.Kind][c.Name] = i
			groups[c.Kind] = append(groups[c.Kind], Bunch{Name: c.Name})
		}
		groups[c.Kind][i].Commands = append(groups[c.Kind][i].Commands, c)
	}
	return kinds, groups
}

// Texts returns the command lines.
func Texts(cmds []Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.Text
	}
	return out
}
