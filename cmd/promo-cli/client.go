package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	outputJSON = "json"
	outputYAML = "yaml"
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcClient struct {
	endpoint string
	output   string
	http     *http.Client
}

func newRPCClient(endpoint string) *rpcClient {
	return &rpcClient{
		endpoint: endpoint,
		output:   outputJSON,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// call issues one JSON-RPC request. token is sent as a bearer credential when
// non-empty.
func (c *rpcClient) call(method string, params interface{}, token string) (json.RawMessage, *rpcError, error) {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	} else {
		payload["params"] = []interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(c.endpoint, "/")+"/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode RPC response (HTTP %d): %w", resp.StatusCode, err)
	}
	return rpcResp.Result, rpcResp.Error, nil
}

// invoke runs call and renders the outcome, returning the exit code.
func (c *rpcClient) invoke(method string, params interface{}, token string, stdout, stderr io.Writer) int {
	result, rpcErr, err := c.call(method, params, token)
	if err != nil {
		fmt.Fprintf(stderr, "RPC call failed: %v\n", err)
		return 1
	}
	if rpcErr != nil {
		fmt.Fprintf(stderr, "RPC error %d: %s\n", rpcErr.Code, rpcErr.Message)
		if len(rpcErr.Data) > 0 && string(rpcErr.Data) != "null" {
			fmt.Fprintf(stderr, "%s\n", rpcErr.Data)
		}
		return 1
	}
	if err := c.writeResult(stdout, result); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (c *rpcClient) writeResult(w io.Writer, result json.RawMessage) error {
	if len(result) == 0 {
		_, err := fmt.Fprintln(w, "null")
		return err
	}
	if c.output == outputYAML {
		var decoded interface{}
		if err := json.Unmarshal(result, &decoded); err != nil {
			return err
		}
		encoded, err := yaml.Marshal(decoded)
		if err != nil {
			return err
		}
		_, err = w.Write(encoded)
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(result)
	}
	pretty.WriteByte('\n')
	_, err := w.Write(pretty.Bytes())
	return err
}
