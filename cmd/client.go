package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"offliner/internal/config"
	apperr "offliner/internal/errors"
)

var clientHTTP = &http.Client{Timeout: 10 * time.Second}

// controlAddr resolves the control API address of the running daemon
// from the data directory's settings.
func controlAddr() (string, error) {
	dataDir, err := resolveDataDir()
	if err != nil {
		return "", err
	}
	cfg, err := config.Load(dataDir)
	if err != nil {
		return "", err
	}
	return cfg.Get().ListenAddr, nil
}

// callControl performs one request against the control API and decodes
// the JSON response into out (when non-nil).
func callControl(method, path string, body any, out any) error {
	addr, err := controlAddr()
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, "http://"+addr+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := clientHTTP.Do(req)
	if err != nil {
		return apperr.NewWithMessage("cmd.callControl", apperr.ErrUnreachable,
			"is the offliner daemon running?")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil && payload.Error != "" {
			return fmt.Errorf("daemon: %s", payload.Error)
		}
		return fmt.Errorf("daemon: %s", resp.Status)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
