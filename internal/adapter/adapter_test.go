package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UCKETX/mcsm-templates/internal/fetch"
	"github.com/UCKETX/mcsm-templates/internal/record"
)

type stubAdapter struct{ name string }

func (s stubAdapter) Name() string { return s.name }
func (s stubAdapter) Fetch(context.Context) ([]Batch, error) { return nil, nil }

func TestNewBatch_GroupsByVersion(t *testing.T) {
	recs := []record.BuildRecord{
		{MCVersion: "1.20.1", CoreVersion: "a"},
		{MCVersion: "1.19.2", CoreVersion: "b"},
		{MCVersion: "1.20.1", CoreVersion: "c"},
	}
	b := NewBatch("Forge", recs)

	assert.Equal(t, "Forge", b.CoreType)
	assert.Equal(t, 3, b.Len())
	require.Len(t, b.Groups["1.20.1"], 2)
	assert.Equal(t, "c", b.Groups["1.20.1"][1].CoreVersion, "input order is kept within a group")
}

func TestSpec_Options(t *testing.T) {
	s := Spec{Name: "X", Options: map[string]any{
		"repo":   "a/b",
		"empty":  "",
		"number": 3,
		"float":  4.0,
		"frac":   1.5,
		"numstr": " 7 ",
		"list":   []any{"a", "", "b", 1},
		"csv":    "a, b,,c",
		"typed":  []string{"x"},
	}}

	assert.Equal(t, "a/b", s.String("repo", "def"))
	assert.Equal(t, "def", s.String("empty", "def"))
	assert.Equal(t, "def", s.String("number", "def"))
	assert.Equal(t, "def", s.String("missing", "def"))

	for key, want := range map[string]int{"number": 3, "float": 4, "numstr": 7, "missing": 9} {
		got, err := s.Int(key, 9)
		require.NoError(t, err, key)
		assert.Equal(t, want, got, key)
	}
	_, err := s.Int("frac", 0)
	assert.Error(t, err)
	_, err = s.Int("repo", 0)
	assert.Error(t, err)

	assert.Equal(t, []string{"a", "b"}, s.Strings("list"))
	assert.Equal(t, []string{"a", "b", "c"}, s.Strings("csv"))
	assert.Equal(t, []string{"x"}, s.Strings("typed"))
	assert.Nil(t, s.Strings("missing"))

	_, err = s.Require("missing")
	assert.ErrorContains(t, err, `option "missing" is required`)
}

func TestDeps(t *testing.T) {
	assert.Error(t, Deps{}.Check())

	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := Deps{Now: func() time.Time { return fixed }}
	assert.Equal(t, fixed, d.Clock())
	assert.NotNil(t, d.Log("x"))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(stubAdapter{"Forge"}, stubAdapter{"Vanilla"})

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"Forge", "Vanilla"}, r.Names())

	err := r.Register(stubAdapter{"Forge"})
	assert.ErrorContains(t, err, "already registered")

	a, ok := r.Get("Vanilla")
	require.True(t, ok)
	assert.Equal(t, "Vanilla", a.Name())

	_, ok = r.Get("Spigot")
	assert.False(t, ok)
}

func TestRegistry_Select(t *testing.T) {
	r := NewRegistry(stubAdapter{"Forge"}, stubAdapter{"Vanilla"}, stubAdapter{"Spigot"})

	all, err := r.Select()
	require.NoError(t, err)
	assert.Same(t, r, all)

	sel, err := r.Select("Spigot", "Forge")
	require.NoError(t, err)
	assert.Equal(t, []string{"Spigot", "Forge"}, sel.Names())

	_, err = r.Select("Paper")
	assert.ErrorContains(t, err, `unknown core "Paper"`)
}

func TestFactories_Build(t *testing.T) {
	client := fetch.NewClient()
	t.Cleanup(client.Close)

	f := Factories{
		"stub": func(spec Spec, deps Deps) (Adapter, error) {
			return stubAdapter{spec.Name}, nil
		},
		"broken": func(spec Spec, deps Deps) (Adapter, error) {
			return nil, errors.New("bad options")
		},
	}
	assert.Equal(t, []string{"broken", "stub"}, f.Kinds())

	reg, err := f.Build([]Spec{{Name: "A", Kind: "stub"}, {Name: "B", Kind: "stub"}}, Deps{Client: client})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, reg.Names())

	_, err = f.Build([]Spec{{Name: "A", Kind: "nope"}}, Deps{Client: client})
	assert.ErrorContains(t, err, `unknown adapter "nope"`)

	_, err = f.Build([]Spec{{Name: "A", Kind: "broken"}}, Deps{Client: client})
	assert.ErrorContains(t, err, `core "A": bad options`)

	_, err = f.Build([]Spec{{Name: "A", Kind: "stub"}, {Name: "A", Kind: "stub"}}, Deps{Client: client})
	assert.ErrorContains(t, err, "already registered")
}
