// Package main — cmd/sourcemap-uploader/main.go
//
// Single-purpose CLI: upload a built project's source code and source
// map archives to a running monitor-server so the sourcemap-processing
// queue can resolve minified stack frames back to original source.
//
// Usage:
//   sourcemap-uploader upload-source-code-sourcemap <projectId> <version> <source.zip> <sourcemap.zip>
//
// The two archives are posted as separate multipart requests against
// POST /api/monitor/sourcecode and POST /api/monitor/sourcemap — the
// server stores them under the same (projectId, version) blob
// directory, so either upload order succeeds.
package main

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
)

func main() {
	serverAddr := pflag.String("server", "http://localhost:8080", "monitor-server base URL")
	apiKey := pflag.String("api-key", "", "Project API key (required)")
	timeout := pflag.Duration("timeout", 60*time.Second, "Per-request HTTP timeout")
	activate := pflag.Bool("activate", true, "Mark the uploaded version active immediately")
	pflag.Parse()

	args := pflag.Args()
	if len(args) != 5 || args[0] != "upload-source-code-sourcemap" {
		fmt.Fprintln(os.Stderr, "usage: sourcemap-uploader upload-source-code-sourcemap <projectId> <version> <source.zip> <sourcemap.zip>")
		os.Exit(2)
	}
	projectID, version, sourcePath, sourcemapPath := args[1], args[2], args[3], args[4]

	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "ERROR: -api-key is required")
		os.Exit(2)
	}

	client := &http.Client{Timeout: *timeout}
	u := &uploader{client: client, serverAddr: *serverAddr, apiKey: *apiKey, activate: *activate}

	fmt.Printf("uploading source code %s (project=%s version=%s)...\n", sourcePath, projectID, version)
	if err := u.upload("sourcecode", sourcePath, version); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: source code upload failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("uploading source map %s (project=%s version=%s)...\n", sourcemapPath, projectID, version)
	if err := u.upload("sourcemap", sourcemapPath, version); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: source map upload failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("done.")
}

type uploader struct {
	client     *http.Client
	serverAddr string
	apiKey     string
	activate   bool
}

func (u *uploader) upload(endpoint, archivePath, version string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", archivePath, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("version", version); err != nil {
		return fmt.Errorf("write version field: %w", err)
	}
	if !u.activate {
		if err := mw.WriteField("activate", "false"); err != nil {
			return fmt.Errorf("write activate field: %w", err)
		}
	}

	part, err := mw.CreateFormFile("archive", filepath.Base(archivePath))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy archive into request body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, u.serverAddr+"/api/monitor/"+endpoint, &body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", u.apiKey)

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
