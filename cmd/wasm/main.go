//go:build js && wasm

package main

import (
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/beatok/backend/internal/fingerprint"
)

// Error codes returned to JavaScript
const (
	ErrorNone = iota
	ErrorInvalidArgs
	ErrorExtraction
	ErrorEncoding
)

// consoleLogger sends extractor warnings to the browser console.
type consoleLogger struct{}

func (consoleLogger) Warnf(format string, args ...any) {
	console := js.Global().Get("console")
	if !console.IsUndefined() {
		console.Call("warn", fmt.Sprintf(format, args...))
	}
}

var extractor = fingerprint.NewExtractor(fingerprint.Default(), consoleLogger{})

// beatokFingerprint fingerprints the raw bytes of an audio file.
// Returns: {error: number, data: {value, method, timings, degenerate} | string}
func beatokFingerprint(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return makeErrorResponse(ErrorInvalidArgs, "Expected 1 argument: audioBytes")
	}

	bytesJS := args[0]
	if !bytesJS.InstanceOf(js.Global().Get("Uint8Array")) {
		return makeErrorResponse(ErrorInvalidArgs, "audioBytes must be a Uint8Array")
	}

	data := make([]byte, bytesJS.Length())
	js.CopyBytesToGo(data, bytesJS)

	res := extractor.Extract(data)
	if !res.OK() {
		return makeErrorResponse(ErrorExtraction, res.Err().Error())
	}

	timings, err := json.Marshal(res.Timings())
	if err != nil {
		return makeErrorResponse(ErrorEncoding, fmt.Sprintf("Failed to encode timings: %v", err))
	}

	out := js.Global().Get("Object").New()
	out.Set("value", res.Hex())
	out.Set("method", res.Method())
	out.Set("timings", js.Global().Get("JSON").Call("parse", string(timings)))
	out.Set("degenerate", res.Degenerate())

	result := js.Global().Get("Object").New()
	result.Set("error", ErrorNone)
	result.Set("data", out)
	return result
}

func makeErrorResponse(errorCode int, message string) js.Value {
	result := js.Global().Get("Object").New()
	result.Set("error", errorCode)
	result.Set("data", message)
	return result
}

func main() {
	console := js.Global().Get("console")
	done := make(chan struct{})

	js.Global().Set("beatokFingerprint", js.FuncOf(beatokFingerprint))

	window := js.Global().Get("window")
	if !window.IsUndefined() {
		event := js.Global().Get("CustomEvent").New("wasmReady", js.Global().Get("Object").New())
		window.Call("dispatchEvent", event)
	} else if !console.IsUndefined() {
		console.Call("error", "window object is undefined")
	}

	if !console.IsUndefined() {
		console.Call("log", "Beatok WASM module loaded")
	}

	<-done
}
