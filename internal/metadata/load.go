package metadata

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
)

//go:embed default.cue
var defaultCUE string

// Default returns the built-in CRM metadata.
func Default() *Metadata {
	m, err := LoadString(defaultCUE)
	if err != nil {
		panic(fmt.Sprintf("metadata: built-in metadata is invalid: %v", err))
	}
	return m
}

// LoadString compiles CUE source and decodes it.
func LoadString(src string) (*Metadata, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename("metadata.cue"))
	return decode(v)
}

// LoadDir loads the CUE package in dir and decodes it.
func LoadDir(dir string) (*Metadata, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("metadata dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("metadata dir: not a directory: %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("metadata dir: no CUE instances in %s", dir)
	}
	if err := instances[0].Err; err != nil {
		return nil, formatCUEError(err)
	}

	ctx := cuecontext.New()
	v := ctx.BuildInstance(instances[0])
	return decode(v)
}

// LoadFile compiles a single CUE file.
func LoadFile(path string) (*Metadata, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("metadata file: %w", err)
	}
	ctx := cuecontext.New()
	return decode(ctx.CompileBytes(src, cue.Filename(path)))
}

func decode(v cue.Value) (*Metadata, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var (
		scopes     map[string]Scope
		entityDefs map[string]EntityDefs
		roles      map[string]Role
	)
	if err := decodePath(v, "scopes", &scopes); err != nil {
		return nil, err
	}
	if err := decodePath(v, "entityDefs", &entityDefs); err != nil {
		return nil, err
	}
	if err := decodePath(v, "roles", &roles); err != nil {
		return nil, err
	}
	return New(scopes, entityDefs, roles), nil
}

func decodePath(v cue.Value, path string, out any) error {
	sub := v.LookupPath(cue.ParsePath(path))
	if !sub.Exists() {
		return nil
	}
	if err := sub.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, formatCUEError(err))
	}
	return nil
}

func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if pos := first.Position(); pos.IsValid() {
		return fmt.Errorf("%s:%d:%d: %s", pos.Filename(), pos.Line(), pos.Column(), first.Error())
	}
	return first
}
