package ac3codec

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WASMDecoder hosts a liba52/AC-3 decoder compiled to WASM inside a
// tetratelabs/wazero runtime, avoiding cgo entirely. The call shape
// (malloc an input buffer, write the frame, call decode, read planar PCM
// back out, free) mirrors llehouerou/go-faad2's wasmContext pattern for
// its own WASM-hosted codec.
type WASMDecoder struct {
	mu sync.Mutex

	runtime  wazero.Runtime
	module   api.Module
	fnCreate api.Function
	fnDecode api.Function
	fnDrain  api.Function
	fnFree   api.Function
	fnMalloc api.Function
	fnFreeM  api.Function

	decoderPtr uint32
	closed     bool
}

// OpenWASMDecoder loads the compiled AC-3 decoder module from wasmPath and
// instantiates one decoder context. The module is an external codec
// collaborator (spec.md §1); its binary is not part of this repository and
// must be supplied at deployment time, the same way a native liba52.so
// would be supplied to a cgo build.
func OpenWASMDecoder(ctx context.Context, wasmPath string) (*WASMDecoder, error) {
	code, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("ac3codec: reading wasm module: %w", err)
	}

	rt := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("ac3codec: instantiating wasi: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, code)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("ac3codec: compiling wasm module: %w", err)
	}

	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("ac3codec: instantiating wasm module: %w", err)
	}

	d := &WASMDecoder{
		runtime:  rt,
		module:   mod,
		fnCreate: mod.ExportedFunction("ac3_decoder_create"),
		fnDecode: mod.ExportedFunction("ac3_decoder_decode"),
		fnDrain:  mod.ExportedFunction("ac3_decoder_drain"),
		fnFree:   mod.ExportedFunction("ac3_decoder_destroy"),
		fnMalloc: mod.ExportedFunction("malloc"),
		fnFreeM:  mod.ExportedFunction("free"),
	}
	if d.fnCreate == nil || d.fnDecode == nil || d.fnMalloc == nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("ac3codec: wasm module missing required exports")
	}

	results, err := d.fnCreate.Call(ctx)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("ac3codec: ac3_decoder_create failed: %w", err)
	}
	d.decoderPtr = uint32(results[0])
	if d.decoderPtr == 0 {
		rt.Close(ctx)
		return nil, fmt.Errorf("ac3codec: decoder context allocation failed")
	}

	return d, nil
}

func (d *WASMDecoder) malloc(ctx context.Context, size uint32) (uint32, error) {
	results, err := d.fnMalloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, err
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, fmt.Errorf("ac3codec: wasm out of memory")
	}
	return ptr, nil
}

func (d *WASMDecoder) free(ctx context.Context, ptr uint32) {
	if ptr == 0 || d.fnFreeM == nil {
		return
	}
	_, _ = d.fnFreeM.Call(ctx, uint64(ptr))
}

func (d *WASMDecoder) write(ptr uint32, data []byte) bool {
	return d.module.Memory().Write(ptr, data)
}

func (d *WASMDecoder) read(ptr uint32, size uint32) ([]byte, bool) {
	return d.module.Memory().Read(ptr, size)
}

// Decode submits one AC-3 frame and returns one decoded planar frame.
// The WASM ABI returns a packed little-endian float32 buffer of
// Channels*SamplesPerFrame entries, or a negative sample count to signal
// push-back (ErrInputRefused) or decode failure.
func (d *WASMDecoder) Decode(ctx context.Context, frame []byte) (PCMFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return PCMFrame{}, fmt.Errorf("ac3codec: decoder closed")
	}
	if len(frame) == 0 {
		return PCMFrame{}, fmt.Errorf("ac3codec: empty frame")
	}

	inPtr, err := d.malloc(ctx, uint32(len(frame)))
	if err != nil {
		return PCMFrame{}, err
	}
	defer d.free(ctx, inPtr)
	if !d.write(inPtr, frame) {
		return PCMFrame{}, fmt.Errorf("ac3codec: writing input frame failed")
	}

	outBytes := uint32(Channels * SamplesPerFrame * 4)
	outPtr, err := d.malloc(ctx, outBytes)
	if err != nil {
		return PCMFrame{}, err
	}
	defer d.free(ctx, outPtr)

	results, err := d.fnDecode.Call(ctx, uint64(d.decoderPtr), uint64(inPtr), uint64(len(frame)), uint64(outPtr), uint64(outBytes))
	if err != nil {
		return PCMFrame{}, fmt.Errorf("ac3codec: decode call failed: %w", err)
	}

	status := int32(results[0])
	switch {
	case status == -2:
		return PCMFrame{}, ErrInputRefused
	case status < 0:
		return PCMFrame{}, fmt.Errorf("ac3codec: decode failed, status %d", status)
	}

	samplesPerChannel := int(status)
	raw, ok := d.read(outPtr, uint32(samplesPerChannel*Channels*4))
	if !ok {
		return PCMFrame{}, fmt.Errorf("ac3codec: reading decoded samples failed")
	}
	return planarFrameFromBytes(raw, samplesPerChannel), nil
}

// Drain retrieves output the decoder buffered without fresh input, after
// Decode returned ErrInputRefused.
func (d *WASMDecoder) Drain(ctx context.Context) (PCMFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return PCMFrame{}, fmt.Errorf("ac3codec: decoder closed")
	}
	if d.fnDrain == nil {
		return PCMFrame{}, ErrNoOutput
	}

	outBytes := uint32(Channels * SamplesPerFrame * 4)
	outPtr, err := d.malloc(ctx, outBytes)
	if err != nil {
		return PCMFrame{}, err
	}
	defer d.free(ctx, outPtr)

	results, err := d.fnDrain.Call(ctx, uint64(d.decoderPtr), uint64(outPtr), uint64(outBytes))
	if err != nil {
		return PCMFrame{}, fmt.Errorf("ac3codec: drain call failed: %w", err)
	}

	status := int32(results[0])
	if status <= 0 {
		return PCMFrame{}, ErrNoOutput
	}

	samplesPerChannel := int(status)
	raw, ok := d.read(outPtr, uint32(samplesPerChannel*Channels*4))
	if !ok {
		return PCMFrame{}, fmt.Errorf("ac3codec: reading drained samples failed")
	}
	return planarFrameFromBytes(raw, samplesPerChannel), nil
}

// planarFrameFromBytes splits a packed little-endian float32
// buffer laid out channel-major (all of channel 0, then all of channel 1,
// ...) into a PCMFrame.
func planarFrameFromBytes(raw []byte, samplesPerChannel int) PCMFrame {
	out := PCMFrame{
		Channels: make([][]float32, Channels),
		Samples:  samplesPerChannel,
	}
	for ch := 0; ch < Channels; ch++ {
		chanData := make([]float32, samplesPerChannel)
		base := ch * samplesPerChannel * 4
		for i := 0; i < samplesPerChannel; i++ {
			off := base + i*4
			bits := uint32(raw[off]) | uint32(raw[off+1])<<8 | uint32(raw[off+2])<<16 | uint32(raw[off+3])<<24
			chanData[i] = float32FromBits(bits)
		}
		out.Channels[ch] = chanData
	}
	return out
}

func float32FromBits(bits uint32) float32 {
	return api.DecodeF32(uint64(bits))
}

// Close tears down the decoder context and releases the WASM runtime.
// Safe to call once; a second call is a no-op.
func (d *WASMDecoder) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if d.decoderPtr != 0 && d.fnFree != nil {
		_, _ = d.fnFree.Call(ctx, uint64(d.decoderPtr))
		d.decoderPtr = 0
	}
	return d.runtime.Close(ctx)
}
