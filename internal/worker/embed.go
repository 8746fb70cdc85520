package worker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// DefaultHashDims is the vector size of the built-in embedder.
const DefaultHashDims = 256

// Embedder turns text into a fixed-length vector. Vectors from one embedder
// are comparable with CosineSimilarity.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EmbedderLoader builds an Embedder on first use. A failed load is not
// cached, so the next request tries again.
type EmbedderLoader func(ctx context.Context) (Embedder, error)

// HashEmbedder is a feature-hashing bag of words: each lowercase word and
// adjacent word pair lands in one signed bucket, and the vector is
// L2-normalized. It needs no model file.
type HashEmbedder struct {
	Dims int
}

// NewHashEmbedder returns a HashEmbedder with dims buckets, or DefaultHashDims
// when dims is not positive.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDims
	}
	return &HashEmbedder{Dims: dims}
}

// Embed implements Embedder.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dims := h.Dims
	if dims <= 0 {
		dims = DefaultHashDims
	}

	vec := make([]float64, dims)
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	for i, w := range words {
		h.add(vec, w, 1)
		if i > 0 {
			h.add(vec, words[i-1]+" "+w, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

func (h *HashEmbedder) add(vec []float64, feature string, weight float64) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(len(vec)))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// WasmEmbedder runs an embedding model compiled to WebAssembly. The module
// must export:
//
//	dims() i32
//	alloc(size i32) i32
//	embed(textPtr i32, textLen i32, outPtr i32)
//
// and may export free(ptr i32). embed writes dims() little-endian float32
// values at outPtr. The input and output buffers are reused across calls;
// the input buffer only grows.
type WasmEmbedder struct {
	mu      sync.Mutex
	runtime wazero.Runtime
	mod     api.Module
	dims    uint32
	alloc   api.Function
	free    api.Function
	embed   api.Function

	outPtr  uint32
	textPtr uint32
	textCap uint32
}

const minTextBuffer = 256

// LoadWasmEmbedder compiles and instantiates the model at path.
func LoadWasmEmbedder(ctx context.Context, path string) (*WasmEmbedder, error) {
	if path == "" {
		return nil, errors.New("no wasm model configured")
	}
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wasm model: %w", err)
	}

	r := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	mod, err := r.Instantiate(ctx, code)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate wasm model: %w", err)
	}

	e := &WasmEmbedder{runtime: r, mod: mod}
	dims := mod.ExportedFunction("dims")
	e.alloc = mod.ExportedFunction("alloc")
	e.embed = mod.ExportedFunction("embed")
	e.free = mod.ExportedFunction("free")
	if dims == nil || e.alloc == nil || e.embed == nil {
		_ = r.Close(ctx)
		return nil, errors.New("wasm model must export dims, alloc and embed")
	}

	out, err := dims.Call(ctx)
	if err != nil || len(out) == 0 || out[0] == 0 {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("wasm model reported no dimensions: %v", err)
	}
	e.dims = uint32(out[0])

	if e.outPtr, err = e.allocate(ctx, e.dims*4); err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	return e, nil
}

// Dims returns the vector size.
func (e *WasmEmbedder) Dims() int { return int(e.dims) }

// Embed implements Embedder.
func (e *WasmEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.reserveText(ctx, uint32(len(text))); err != nil {
		return nil, err
	}
	textPtr, outPtr := e.textPtr, e.outPtr

	mem := e.mod.Memory()
	if !mem.Write(textPtr, []byte(text)) {
		return nil, errors.New("wasm model: text out of memory range")
	}
	if _, err := e.embed.Call(ctx, uint64(textPtr), uint64(len(text)), uint64(outPtr)); err != nil {
		return nil, fmt.Errorf("wasm model embed failed: %w", err)
	}

	vec := make([]float64, e.dims)
	for i := range vec {
		v, ok := mem.ReadFloat32Le(outPtr + uint32(i)*4)
		if !ok {
			return nil, errors.New("wasm model: output out of memory range")
		}
		vec[i] = float64(v)
	}
	return vec, nil
}

// reserveText makes sure the input buffer holds at least size bytes.
func (e *WasmEmbedder) reserveText(ctx context.Context, size uint32) error {
	if size <= e.textCap && e.textCap > 0 {
		return nil
	}
	capacity := max(size, 2*e.textCap, minTextBuffer)
	ptr, err := e.allocate(ctx, capacity)
	if err != nil {
		return err
	}
	if e.textCap > 0 && e.free != nil {
		if _, err := e.free.Call(ctx, uint64(e.textPtr)); err != nil {
			return fmt.Errorf("wasm model free failed: %w", err)
		}
	}
	e.textPtr, e.textCap = ptr, capacity
	return nil
}

func (e *WasmEmbedder) allocate(ctx context.Context, size uint32) (uint32, error) {
	out, err := e.alloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("wasm model alloc failed: %w", err)
	}
	if len(out) == 0 {
		return 0, errors.New("wasm model alloc returned nothing")
	}
	return uint32(out[0]), nil
}

// Close releases the runtime.
func (e *WasmEmbedder) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}
