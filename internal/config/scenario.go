package config

import (
	"strconv"
	"strings"

	"github.com/phil-mansfield/grainflow/internal/errs"
)

// Scenario is the typed form of a scenario file's root Block, per spec.md
// §6's grammar table. Interpretation does not validate cross-field
// consistency (e.g. Force-grid referencing a type index >= NTypes) --
// that belongs to the builder, which has enough context to report a
// useful message.
type Scenario struct {
	File       string
	Dimensions int
	Bounds     []Range
	Boundary   []BoundaryKind
	NTypes     int

	ForceGrid []ForceEntry
	Templates []Template

	Fills []Fill

	Integrator IntegratorSpec
	Modifiers  []ModifierSpec

	HSRelax float64
	Relax   float64
}

// Range is one dimension's [Lo, Hi) extent.
type Range struct{ Lo, Hi float64 }

// BoundaryKind enumerates spec.md §5's per-dimension boundary conditions.
type BoundaryKind int

const (
	BoundaryWrap BoundaryKind = iota
	BoundaryReflect
	BoundaryRepulse
	BoundaryAttract
	BoundaryOpen
)

func parseBoundaryKind(file string, line int, s string) (BoundaryKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wrap", "periodic":
		return BoundaryWrap, nil
	case "reflect", "reflecting":
		return BoundaryReflect, nil
	case "repulse", "repulsive":
		return BoundaryRepulse, nil
	case "attract", "attractive":
		return BoundaryAttract, nil
	case "open", "none":
		return BoundaryOpen, nil
	default:
		return 0, errs.New(errs.BadArgument, file, line, "unrecognized boundary kind %q", s)
	}
}

// ForceEntry is one "Force-grid" row: the kernel assigned to an ordered
// (or unordered, per spec.md's does_interact symmetry) pair of particle
// types.
type ForceEntry struct {
	TypeI, TypeJ int
	Kernel       string
	Params       map[string]float64
	Line         int
}

// Template names a reusable particle archetype (radius, mass, default
// type) referenced by Fill entries.
type Template struct {
	Name   string
	Sigma  float64
	Mass   float64
	Type   int
	Extra  map[string]float64
	Line   int
}

// Fill describes a generator that populates a region with particles
// drawn from a Template, via either uniform-area or rejection-sampled
// circle/sphere placement.
type Fill struct {
	Kind     FillKind
	Template string
	Number   int
	Area     []Range // Kind == FillArea: explicit per-dimension sub-range, defaults to Bounds
	Center   []float64
	Radius   float64 // Kind == FillCircle
	Seed     int64
	Line     int
}

type FillKind int

const (
	FillArea FillKind = iota
	FillCircle
)

// IntegratorSpec configures the time-stepping scheme (spec.md §4.3/§4.4).
type IntegratorSpec struct {
	Kind     string // "VelocityVerlet" or "Overdamped"
	Dt       float64
	DtMax    float64
	VMax     float64
	AMax     float64
	Gamma    float64 // Overdamped's mobility coefficient
	Adaptive bool
	Line     int
}

// ModifierSpec configures one optional per-step hook (spec.md §4.6:
// observers, boundary forcing, thermostats, ...).
type ModifierSpec struct {
	Name   string
	Params map[string]float64
	Line   int
}

// Interpret walks a parsed root Block into a Scenario. file is carried
// through only for error messages.
func Interpret(file string, root *Block) (*Scenario, error) {
	s := &Scenario{File: file}

	dimsBlock := root.Find("Dimensions")
	if dimsBlock == nil {
		return nil, errs.New(errs.BadDimension, file, 0, "missing required Dimensions entry")
	}
	dims, err := strconv.Atoi(dimsBlock.Value)
	if err != nil || dims <= 0 {
		return nil, errs.New(errs.BadDimension, file, dimsBlock.Line,
			"Dimensions must be a positive integer, got %q", dimsBlock.Value)
	}
	s.Dimensions = dims

	if b := root.Find("Bounds"); b != nil {
		if err := interpretBounds(file, b, s); err != nil {
			return nil, err
		}
	} else {
		return nil, errs.New(errs.BadStructure, file, 0, "missing required Bounds entry")
	}

	if b := root.Find("Boundary"); b != nil {
		if err := interpretBoundary(file, b, s); err != nil {
			return nil, err
		}
	} else {
		s.Boundary = make([]BoundaryKind, dims)
	}

	ntypesBlock := root.Find("NTypes")
	if ntypesBlock == nil {
		return nil, errs.New(errs.BadStructure, file, 0, "missing required NTypes entry")
	}
	ntypes, err := strconv.Atoi(ntypesBlock.Value)
	if err != nil || ntypes <= 0 {
		return nil, errs.New(errs.BadArgument, file, ntypesBlock.Line,
			"NTypes must be a positive integer, got %q", ntypesBlock.Value)
	}
	s.NTypes = ntypes

	for _, fg := range root.FindAll("Force-grid") {
		entries, err := interpretForceGrid(file, fg)
		if err != nil {
			return nil, err
		}
		s.ForceGrid = append(s.ForceGrid, entries...)
	}

	for _, tb := range root.FindAll("Template") {
		tmpl, err := interpretTemplate(file, tb)
		if err != nil {
			return nil, err
		}
		s.Templates = append(s.Templates, tmpl)
	}

	for _, fb := range root.FindAll("Fill") {
		fill, err := interpretFill(file, fb)
		if err != nil {
			return nil, err
		}
		s.Fills = append(s.Fills, fill)
	}

	if ib := root.Find("Integrator"); ib != nil {
		spec, err := interpretIntegrator(file, ib)
		if err != nil {
			return nil, err
		}
		s.Integrator = spec
	} else {
		return nil, errs.New(errs.BadStructure, file, 0, "missing required Integrator entry")
	}

	for _, mb := range root.FindAll("Modifier") {
		mod, err := interpretModifier(file, mb)
		if err != nil {
			return nil, err
		}
		s.Modifiers = append(s.Modifiers, mod)
	}

	if hb := root.Find("HSRelax"); hb != nil {
		v, err := parseFloat(file, hb.Line, hb.Value)
		if err != nil {
			return nil, err
		}
		s.HSRelax = v
	}
	if rb := root.Find("Relax"); rb != nil {
		v, err := parseFloat(file, rb.Line, rb.Value)
		if err != nil {
			return nil, err
		}
		s.Relax = v
	}

	return s, nil
}

func interpretBounds(file string, b *Block, s *Scenario) error {
	for _, row := range b.Children {
		args := row.Args()
		if len(args) != 2 {
			return errs.New(errs.BadStructure, file, row.Line,
				"Bounds entry must have exactly 2 fields (lo,hi), got %d", len(args))
		}
		lo, err := parseFloat(file, row.Line, args[0])
		if err != nil {
			return err
		}
		hi, err := parseFloat(file, row.Line, args[1])
		if err != nil {
			return err
		}
		if hi <= lo {
			return errs.New(errs.BadArgument, file, row.Line, "Bounds hi (%g) must exceed lo (%g)", hi, lo)
		}
		s.Bounds = append(s.Bounds, Range{Lo: lo, Hi: hi})
	}
	if len(s.Bounds) != s.Dimensions {
		return errs.New(errs.BadDimension, file, b.Line,
			"Bounds has %d entries, want %d (Dimensions)", len(s.Bounds), s.Dimensions)
	}
	return nil
}

func interpretBoundary(file string, b *Block, s *Scenario) error {
	for _, row := range b.Children {
		k, err := parseBoundaryKind(file, row.Line, row.Value)
		if err != nil {
			return err
		}
		s.Boundary = append(s.Boundary, k)
	}
	if len(s.Boundary) != s.Dimensions {
		return errs.New(errs.BadDimension, file, b.Line,
			"Boundary has %d entries, want %d (Dimensions)", len(s.Boundary), s.Dimensions)
	}
	return nil
}

func interpretForceGrid(file string, b *Block) ([]ForceEntry, error) {
	var out []ForceEntry
	for _, row := range b.Children {
		args := row.Args()
		if len(args) < 3 {
			return nil, errs.New(errs.BadStructure, file, row.Line,
				"Force-grid entry needs at least (ti, tj, Kernel), got %d fields", len(args))
		}
		ti, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, errs.New(errs.BadArgument, file, row.Line, "Force-grid type index %q not an integer", args[0])
		}
		tj, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, errs.New(errs.BadArgument, file, row.Line, "Force-grid type index %q not an integer", args[1])
		}
		kernel := args[2]
		params := make(map[string]float64)
		for _, kv := range row.Children {
			v, err := parseFloat(file, kv.Line, kv.Value)
			if err != nil {
				return nil, err
			}
			params[kv.Key] = v
		}
		out = append(out, ForceEntry{TypeI: ti, TypeJ: tj, Kernel: kernel, Params: params, Line: row.Line})
	}
	return out, nil
}

func interpretTemplate(file string, b *Block) (Template, error) {
	t := Template{Name: strings.TrimSpace(b.Value), Extra: make(map[string]float64), Line: b.Line}
	for _, c := range b.Children {
		switch strings.ToLower(c.Key) {
		case "sigma", "radius":
			v, err := parseFloat(file, c.Line, c.Value)
			if err != nil {
				return t, err
			}
			t.Sigma = v
		case "mass":
			v, err := parseFloat(file, c.Line, c.Value)
			if err != nil {
				return t, err
			}
			t.Mass = v
		case "type":
			v, err := strconv.Atoi(c.Value)
			if err != nil {
				return t, errs.New(errs.BadArgument, file, c.Line, "Template Type %q not an integer", c.Value)
			}
			t.Type = v
		default:
			v, err := parseFloat(file, c.Line, c.Value)
			if err != nil {
				return t, err
			}
			t.Extra[c.Key] = v
		}
	}
	return t, nil
}

func interpretFill(file string, b *Block) (Fill, error) {
	f := Fill{Line: b.Line}
	switch strings.ToLower(strings.TrimSpace(b.Value)) {
	case "area":
		f.Kind = FillArea
	case "circle", "sphere":
		f.Kind = FillCircle
	default:
		return f, errs.New(errs.BadArgument, file, b.Line, "unrecognized Fill kind %q", b.Value)
	}

	for _, c := range b.Children {
		switch strings.ToLower(c.Key) {
		case "template":
			f.Template = strings.TrimSpace(c.Value)
		case "number":
			n, err := strconv.Atoi(c.Value)
			if err != nil || n < 0 {
				return f, errs.New(errs.BadArgument, file, c.Line, "Fill Number must be a non-negative integer, got %q", c.Value)
			}
			f.Number = n
		case "area":
			for _, row := range c.Children {
				args := row.Args()
				if len(args) != 2 {
					return f, errs.New(errs.BadStructure, file, row.Line, "Fill Area entry must have 2 fields (lo,hi)")
				}
				lo, err := parseFloat(file, row.Line, args[0])
				if err != nil {
					return f, err
				}
				hi, err := parseFloat(file, row.Line, args[1])
				if err != nil {
					return f, err
				}
				f.Area = append(f.Area, Range{Lo: lo, Hi: hi})
			}
		case "center":
			for _, v := range c.Args() {
				x, err := parseFloat(file, c.Line, v)
				if err != nil {
					return f, err
				}
				f.Center = append(f.Center, x)
			}
		case "radius":
			v, err := parseFloat(file, c.Line, c.Value)
			if err != nil {
				return f, err
			}
			f.Radius = v
		case "seed":
			v, err := strconv.ParseInt(c.Value, 10, 64)
			if err != nil {
				return f, errs.New(errs.BadArgument, file, c.Line, "Fill Seed must be an integer, got %q", c.Value)
			}
			f.Seed = v
		}
	}
	if f.Template == "" {
		return f, errs.New(errs.BadStructure, file, b.Line, "Fill entry missing required Template reference")
	}
	return f, nil
}

func interpretIntegrator(file string, b *Block) (IntegratorSpec, error) {
	spec := IntegratorSpec{Kind: strings.TrimSpace(b.Value), Line: b.Line}
	for _, c := range b.Children {
		switch strings.ToLower(c.Key) {
		case "dt":
			v, err := parseFloat(file, c.Line, c.Value)
			if err != nil {
				return spec, err
			}
			spec.Dt = v
		case "dtmax":
			v, err := parseFloat(file, c.Line, c.Value)
			if err != nil {
				return spec, err
			}
			spec.DtMax = v
		case "vmax":
			v, err := parseFloat(file, c.Line, c.Value)
			if err != nil {
				return spec, err
			}
			spec.VMax = v
		case "amax":
			v, err := parseFloat(file, c.Line, c.Value)
			if err != nil {
				return spec, err
			}
			spec.AMax = v
		case "adaptive":
			spec.Adaptive = strings.EqualFold(strings.TrimSpace(c.Value), "true")
		case "gamma":
			v, err := parseFloat(file, c.Line, c.Value)
			if err != nil {
				return spec, err
			}
			spec.Gamma = v
		}
	}
	if spec.Dt <= 0 && !spec.Adaptive {
		return spec, errs.New(errs.BadArgument, file, b.Line, "Integrator Dt must be positive when Adaptive is not set")
	}
	return spec, nil
}

func interpretModifier(file string, b *Block) (ModifierSpec, error) {
	m := ModifierSpec{Name: strings.TrimSpace(b.Value), Params: make(map[string]float64), Line: b.Line}
	for _, c := range b.Children {
		v, err := parseFloat(file, c.Line, c.Value)
		if err != nil {
			return m, err
		}
		m.Params[c.Key] = v
	}
	return m, nil
}

func parseFloat(file string, line int, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errs.New(errs.BadArgument, file, line, "expected a number, got %q", s)
	}
	return v, nil
}

// Load parses and interprets a scenario file's raw text in one step.
func Load(filename, src string) (*Scenario, error) {
	root, err := Parse(filename, src)
	if err != nil {
		return nil, AsConfigError(err)
	}
	return Interpret(filename, root)
}
