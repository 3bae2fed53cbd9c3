//go:build js && wasm

// Package main implements a WASM build of efirma for browser-side credential
// checks. Certificates, keys and passphrases never leave the page.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"syscall/js"

	"github.com/sensiblebit/efirma"
	"github.com/sensiblebit/efirma/internal"
)

// version is set at build time via -ldflags "-X main.version=v0.1.0".
var version = "dev"

var (
	configMu sync.RWMutex
	config   = internal.DefaultConfig()
)

func main() {
	js.Global().Set("efirmaVersion", version)
	js.Global().Set("efirmaConfigure", js.FuncOf(configure))
	js.Global().Set("efirmaPreview", js.FuncOf(preview))
	js.Global().Set("efirmaValidate", js.FuncOf(validate))
	js.Global().Set("efirmaPack", js.FuncOf(pack))
	js.Global().Set("efirmaUnpack", js.FuncOf(unpack))

	// Block forever; WASM modules must not exit.
	select {}
}

// configure overrides the export password, friendly name and container
// format used by efirmaPack. Empty or missing fields keep their value.
// JS signature: efirmaConfigure({exportPassword?, friendlyName?, format?}) → string
func configure(_ js.Value, args []js.Value) any {
	if len(args) < 1 || args[0].Type() != js.TypeObject {
		return jsError(fmt.Errorf("%w: efirmaConfigure requires an options object", efirma.ErrMissingField))
	}
	opts := args[0]

	configMu.Lock()
	defer configMu.Unlock()
	next := config
	if v := stringField(opts, "exportPassword"); v != "" {
		next.ExportPassword = v
	}
	if v := stringField(opts, "friendlyName"); v != "" {
		next.FriendlyName = v
	}
	if v := stringField(opts, "format"); v != "" {
		if _, err := efirma.ParseContainerFormat(v); err != nil {
			return jsError(err)
		}
		next.ContainerType = v
	}
	if err := next.Validate(); err != nil {
		return jsError(fmt.Errorf("%w: %v", efirma.ErrMalformedInput, err))
	}
	config = next
	return jsResult(map[string]any{"ok": true, "format": config.Format(), "friendlyName": config.FriendlyName})
}

// preview summarizes a certificate.
// JS signature: efirmaPreview(cer: Uint8Array) → Promise<string>
func preview(_ js.Value, args []js.Value) any {
	cer := bytesArg(args, 0)
	return promise(func() (any, error) {
		c, err := efirma.LoadCertificate(cer)
		if err != nil {
			return nil, err
		}
		return internal.NewPreview(c), nil
	})
}

// validate runs the full credential validation. A failed report resolves
// with ok=false and the report; it does not reject.
// JS signature: efirmaValidate(cer: Uint8Array, key: Uint8Array, passphrase: string, rfc: string) → Promise<string>
func validate(_ js.Value, args []js.Value) any {
	cer, key := bytesArg(args, 0), bytesArg(args, 1)
	passphrase, rfc := stringArg(args, 2), stringArg(args, 3)
	return promise(func() (any, error) {
		report, err := efirma.Validate(efirma.ValidateInput{
			Certificate:     cer,
			PrivateKey:      key,
			Passphrase:      passphrase,
			ClaimedIdentity: rfc,
		})
		if err != nil {
			return nil, err
		}
		return internal.NewValidationResponse(report), nil
	})
}

// pack builds a container protected by the configured export password.
// JS signature: efirmaPack(cer: Uint8Array, key: Uint8Array, passphrase: string, format?: string) → Promise<string>
func pack(_ js.Value, args []js.Value) any {
	cer, key := bytesArg(args, 0), bytesArg(args, 1)
	passphrase, formatName := stringArg(args, 2), stringArg(args, 3)

	configMu.RLock()
	cfg := config
	configMu.RUnlock()

	return promise(func() (any, error) {
		format := cfg.Format()
		if formatName != "" {
			var err error
			if format, err = efirma.ParseContainerFormat(formatName); err != nil {
				return nil, err
			}
		}
		res, err := efirma.Pack(efirma.PackInput{
			Certificate:      cer,
			PrivateKey:       key,
			ImportPassphrase: passphrase,
			ExportPassword:   cfg.ExportPassword,
			FriendlyName:     cfg.FriendlyName,
			Format:           format,
		})
		if err != nil {
			return nil, err
		}
		return internal.PackResponse{OK: true, Base64: res.Base64, Metadata: res.Metadata}, nil
	})
}

// unpack opens a base64 container and describes it.
// JS signature: efirmaUnpack(base64: string, password: string) → Promise<string>
func unpack(_ js.Value, args []js.Value) any {
	b64, password := stringArg(args, 0), stringArg(args, 1)
	return promise(func() (any, error) {
		res, err := efirma.UnpackBase64(b64, password)
		if err != nil {
			return nil, err
		}
		return internal.UnpackResponse{OK: true, Metadata: res.Metadata}, nil
	})
}

// promise runs fn on a goroutine and resolves with its JSON result. Errors
// from fn resolve with {ok:false, error, code}; only a marshaling failure
// rejects.
func promise(fn func() (any, error)) js.Value {
	handler := js.FuncOf(func(_ js.Value, promiseArgs []js.Value) any {
		resolve := promiseArgs[0]
		reject := promiseArgs[1]
		go func() {
			v, err := fn()
			if err != nil {
				slog.Debug("operation failed", "code", efirma.ErrorCode(err))
				v = internal.NewErrorResponse(err)
			}
			out, err := json.Marshal(v)
			if err != nil {
				reject.Invoke(fmt.Sprintf("marshaling result: %v", err))
				return
			}
			resolve.Invoke(string(out))
		}()
		return nil
	})
	// Promise.New calls the executor synchronously; release immediately after.
	p := js.Global().Get("Promise").New(handler)
	handler.Release()
	return p
}

// bytesArg copies args[i] out of a Uint8Array. A missing argument yields nil,
// which the operations report as a missing field.
func bytesArg(args []js.Value, i int) []byte {
	if i >= len(args) || args[i].IsUndefined() || args[i].IsNull() {
		return nil
	}
	data := make([]byte, args[i].Length())
	js.CopyBytesToGo(data, args[i])
	return data
}

func stringArg(args []js.Value, i int) string {
	if i >= len(args) || args[i].Type() != js.TypeString {
		return ""
	}
	return args[i].String()
}

func stringField(obj js.Value, name string) string {
	v := obj.Get(name)
	if v.Type() != js.TypeString {
		return ""
	}
	return v.String()
}

func jsResult(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return `{"ok":false,"error":"marshaling result","code":"INTERNAL"}`
	}
	return string(out)
}

// jsError returns a JSON error string for synchronous functions.
func jsError(err error) string {
	return jsResult(internal.NewErrorResponse(err))
}
