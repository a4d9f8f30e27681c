package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hrygo/lifesaver/store"
)

// protocolFile is the on-disk layout of additional protocols.
//
//	protocols:
//	  - emergency_type: severe_bleeding
//	    title: Severe Bleeding
//	    steps:
//	      - id: call_ems
//	        instruction: Call emergency services now.
type protocolFile struct {
	Protocols []*store.Procedure `yaml:"protocols"`
}

// ParseFile decodes a YAML protocol document.
func ParseFile(data []byte) (map[string]*store.Procedure, error) {
	var f protocolFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse protocol file: %w", err)
	}
	out := make(map[string]*store.Procedure, len(f.Protocols))
	for i, p := range f.Protocols {
		if p == nil {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(p.EmergencyType))
		if key == "" {
			return nil, fmt.Errorf("protocol %d has no emergency_type", i)
		}
		if len(p.Steps) == 0 {
			return nil, fmt.Errorf("protocol %q has no steps", key)
		}
		p.EmergencyType = key
		out[key] = p
	}
	return out, nil
}

// FileLookup serves protocols from a YAML file and defers to next for the
// types the file does not define. The file is re-read on every call, so
// wrap it with NewCached.
type FileLookup struct {
	path string
	next Lookup
}

var _ Lookup = (*FileLookup)(nil)

// NewFileLookup creates a lookup over path backed by next.
func NewFileLookup(path string, next Lookup) *FileLookup {
	return &FileLookup{path: path, next: next}
}

func (f *FileLookup) GetProtocol(ctx context.Context, emergencyType string) (*store.Procedure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	protocols, err := f.load()
	if err != nil {
		// A broken file must not hide the bundled protocols.
		slog.Warn("protocol file unusable, using bundled protocols", "path", f.path, "error", err)
	}
	if p, ok := protocols[strings.ToLower(strings.TrimSpace(emergencyType))]; ok {
		return Clone(p), nil
	}
	if f.next == nil {
		return nil, fmt.Errorf("%w: %q", ErrProtocolNotFound, emergencyType)
	}
	return f.next.GetProtocol(ctx, emergencyType)
}

func (f *FileLookup) load() (map[string]*store.Procedure, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read protocol file: %w", err)
	}
	return ParseFile(data)
}
