package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/session"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// PluginExporter runs a custom exporter compiled to WebAssembly.
//
// The module receives the json export document as a NUL-terminated string
// and returns the rendered output the same way. It must export:
//
//	alloc(size i32) i32
//	dealloc(ptr i32, size i32)
//	render(doc i32) i32        // 0 on failure
//	free_string(ptr i32)
//	last_error() i32           // optional
type PluginExporter struct {
	name      string
	extension string
	runtime   wazero.Runtime
	module    api.Module
	now       func() time.Time

	mu sync.Mutex
}

// LoadPlugin reads a wasm module from disk. The format name is the file
// name without its extension.
func LoadPlugin(ctx context.Context, path, extension string) (*PluginExporter, error) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wasm file: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return NewPlugin(ctx, name, extension, wasmBytes)
}

// NewPlugin compiles and instantiates a plugin exporter.
func NewPlugin(ctx context.Context, name, extension string, wasmBytes []byte) (*PluginExporter, error) {
	if extension == "" {
		extension = ".txt"
	}

	r := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to compile wasm module: %w", err)
	}

	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithStderr(os.Stderr))
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate wasm module: %w", err)
	}

	for _, fn := range []string{"alloc", "dealloc", "render", "free_string"} {
		if mod.ExportedFunction(fn) == nil {
			_ = r.Close(ctx)
			return nil, fmt.Errorf("plugin %s: %s not exported", name, fn)
		}
	}

	return &PluginExporter{
		name:      name,
		extension: extension,
		runtime:   r,
		module:    mod,
		now:       time.Now,
	}, nil
}

func (p *PluginExporter) FormatName() string    { return p.name }
func (p *PluginExporter) FileExtension() string { return p.extension }

// Close releases the wasm runtime.
func (p *PluginExporter) Close(ctx context.Context) error {
	return p.runtime.Close(ctx)
}

func (p *PluginExporter) Export(events []models.Event, info *session.Info) ([]byte, error) {
	doc, err := json.Marshal(NewDocument(events, info, p.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx := context.Background()
	docPtr, docLen, err := p.writeString(ctx, string(doc))
	if err != nil {
		return nil, err
	}
	defer p.dealloc(ctx, docPtr, docLen)

	results, err := p.module.ExportedFunction("render").Call(ctx, uint64(docPtr))
	if err != nil {
		return nil, fmt.Errorf("failed to call render: %w", err)
	}

	resPtr := uint32(results[0])
	if resPtr == 0 {
		return nil, p.lastError(ctx)
	}
	defer p.freeString(ctx, resPtr)

	out, err := p.readString(resPtr)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func (p *PluginExporter) writeString(ctx context.Context, s string) (uint32, uint32, error) {
	nullTerminated := s + "\x00"
	size := uint32(len(nullTerminated))

	results, err := p.module.ExportedFunction("alloc").Call(ctx, uint64(size))
	if err != nil {
		return 0, 0, fmt.Errorf("alloc failed: %w", err)
	}

	ptr := uint32(results[0])
	if !p.module.Memory().Write(ptr, []byte(nullTerminated)) {
		return 0, 0, fmt.Errorf("failed to write string to memory")
	}
	return ptr, size, nil
}

func (p *PluginExporter) dealloc(ctx context.Context, ptr, size uint32) {
	_, _ = p.module.ExportedFunction("dealloc").Call(ctx, uint64(ptr), uint64(size))
}

func (p *PluginExporter) freeString(ctx context.Context, ptr uint32) {
	_, _ = p.module.ExportedFunction("free_string").Call(ctx, uint64(ptr))
}

func (p *PluginExporter) lastError(ctx context.Context) error {
	fn := p.module.ExportedFunction("last_error")
	if fn == nil {
		return fmt.Errorf("plugin %s: render failed", p.name)
	}
	results, err := fn.Call(ctx)
	if err != nil {
		return fmt.Errorf("failed to get last error: %w", err)
	}

	ptr := uint32(results[0])
	if ptr == 0 {
		return fmt.Errorf("plugin %s: render failed (no error message)", p.name)
	}
	s, err := p.readString(ptr)
	if err != nil {
		return fmt.Errorf("failed to read error message: %w", err)
	}
	return fmt.Errorf("plugin %s: %s", p.name, s)
}

func (p *PluginExporter) readString(ptr uint32) (string, error) {
	mem := p.module.Memory()
	buf, ok := mem.Read(ptr, mem.Size()-ptr)
	if !ok {
		return "", fmt.Errorf("failed to read from memory at %d", ptr)
	}
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), nil
		}
	}
	return "", fmt.Errorf("string not null-terminated")
}
