// Package main implements the ansctl CLI for manual operations against the
// answerd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the answerd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ansctl",
	Short: "CLI for answerd HTTP server operations",
	Long: `ansctl is a command-line interface for interacting with the answerd server.
It provides commands for managing the knowledge base and asking questions.`,
	Version: version,
}

var clearFirst bool

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8000", "answerd server URL")
	addCmd.Flags().BoolVar(&clearFirst, "clear-first", false, "clear the knowledge base before indexing")
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(healthCmd)
}

var addCmd = &cobra.Command{
	Use:   "add <document-id> [document-id...]",
	Short: "Index documents into the knowledge base",
	Long: `Index one or more documents into the knowledge base.

Document ids are paths relative to the daemon's documents root.

Examples:
  # Index two documents
  ansctl add notes/standup.md runbooks/incident.md

  # Replace the knowledge base with one document
  ansctl add --clear-first handbook.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	RunE:  runList,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all documents from the knowledge base",
	RunE:  runClear,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question over the indexed documents",
	Long: `Ask a question over the indexed documents.

Examples:
  # Ask a question
  ansctl ask "what is the incident escalation path?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check answerd server health",
	RunE:  runHealth,
}

// AddRequest matches internal/httpapi AddRequest.
type AddRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

// AddResponse matches internal/knowledge AddResult.
type AddResponse struct {
	Added         int `json:"added"`
	ChunksIndexed int `json:"chunks_indexed"`
	Errors        []struct {
		DocumentID string `json:"document_id"`
		Error      string `json:"error"`
	} `json:"errors"`
}

// DocumentsResponse matches internal/httpapi DocumentsResponse.
type DocumentsResponse struct {
	Documents []struct {
		DocumentID   string `json:"document_id"`
		DocumentName string `json:"document_name"`
		ChunkCount   int    `json:"chunk_count"`
	} `json:"documents"`
	Count int `json:"count"`
}

// ChatRequest matches internal/httpapi ChatRequest.
type ChatRequest struct {
	Query string `json:"query"`
}

// ChatResponse matches internal/httpapi ChatResponse.
type ChatResponse struct {
	Response         string `json:"response"`
	FoundInDocuments bool   `json:"found_in_documents"`
	Sources          []struct {
		DocumentID   string `json:"document_id"`
		DocumentName string `json:"document_name"`
	} `json:"sources"`
	ConversationID string `json:"conversation_id"`
}

// HealthResponse matches internal/httpapi HealthResponse.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func runAdd(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/api/knowledge-base/add", serverURL)
	if clearFirst {
		url += "?clear_first=true"
	}

	var resp AddResponse
	if err := postJSON(url, AddRequest{DocumentIDs: args}, &resp, 5*time.Minute); err != nil {
		return err
	}

	fmt.Printf("Indexed %d document(s), %d chunk(s)\n", resp.Added, resp.ChunksIndexed)
	for _, e := range resp.Errors {
		fmt.Fprintf(os.Stderr, "failed: %s: %s\n", e.DocumentID, e.Error)
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("%d document(s) failed", len(resp.Errors))
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	var resp DocumentsResponse
	if err := getJSON(fmt.Sprintf("%s/api/knowledge-base/documents", serverURL), &resp); err != nil {
		return err
	}

	if resp.Count == 0 {
		fmt.Println("Knowledge base is empty")
		return nil
	}
	for _, d := range resp.Documents {
		fmt.Printf("%s\t%s\t%d chunk(s)\n", d.DocumentID, d.DocumentName, d.ChunkCount)
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/knowledge-base/clear", serverURL), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	fmt.Println("Knowledge base cleared")
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	var resp ChatResponse
	if err := postJSON(fmt.Sprintf("%s/api/chat", serverURL), ChatRequest{Query: query}, &resp, 2*time.Minute); err != nil {
		return err
	}

	fmt.Println(resp.Response)
	if resp.FoundInDocuments && len(resp.Sources) > 0 {
		names := make([]string, len(resp.Sources))
		for i, s := range resp.Sources {
			names[i] = s.DocumentName
		}
		fmt.Fprintf(os.Stderr, "\nSources: %s\n", strings.Join(names, ", "))
	}
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	var resp HealthResponse
	if err := getJSON(fmt.Sprintf("%s/health", serverURL), &resp); err != nil {
		return err
	}
	fmt.Printf("Server Status: %s (%s)\n", resp.Status, resp.Service)
	return nil
}

func postJSON(url string, body, out any, timeout time.Duration) error {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func getJSON(url string, out any) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
