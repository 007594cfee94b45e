package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:   "ytgrab",
		Short: "ytgrab CLI - yt-dlp download task manager",
		Long:  `A command-line interface for managing video download tasks driven by yt-dlp.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(presetsCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Add a download task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		payload := map[string]interface{}{
			"url": args[0],
		}
		if savePath, _ := cmd.Flags().GetString("save-path"); savePath != "" {
			payload["save_path"] = savePath
		}
		if preset, _ := cmd.Flags().GetString("preset"); preset != "" {
			payload["format_preset"] = preset
		}
		if proxy, _ := cmd.Flags().GetString("proxy"); proxy != "" {
			payload["proxy"] = proxy
		}
		if fragments, _ := cmd.Flags().GetInt("fragments"); fragments > 0 {
			payload["concurrent_fragments"] = fragments
		}
		if subs, _ := cmd.Flags().GetBool("subs"); subs {
			payload["write_subs"] = true
		}
		if playlist, _ := cmd.Flags().GetBool("playlist"); playlist {
			payload["download_playlist"] = true
			if items, _ := cmd.Flags().GetString("playlist-items"); items != "" {
				payload["playlist_items"] = items
			}
			if random, _ := cmd.Flags().GetBool("playlist-random"); random {
				payload["playlist_random"] = true
			}
			if max, _ := cmd.Flags().GetInt("max-downloads"); max > 0 {
				payload["max_downloads"] = max
			}
		}
		if start, _ := cmd.Flags().GetBool("start"); start {
			payload["auto_start"] = true
		}

		data, _ := json.Marshal(payload)
		resp, err := http.Post(serverURL+"/api/v1/tasks", "application/json", bytes.NewBuffer(data))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusCreated {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var result map[string]interface{}
		json.Unmarshal(body, &result)
		fmt.Printf("Task added successfully!\n")
		fmt.Printf("ID: %v\n", result["id"])
		fmt.Printf("Status: %s\n", result["status"])
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tasks",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		resp, err := http.Get(serverURL + "/api/v1/tasks")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var tasks []map[string]interface{}
		json.Unmarshal(body, &tasks)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPROGRESS\tSPEED\tETA")
		for _, t := range tasks {
			fmt.Fprintf(w, "%v\t%s\t%s\t%v%%\t%s\t%s\n",
				t["id"],
				truncate(stringOf(t["title"]), 40),
				t["status"],
				t["progress"],
				stringOf(t["speed"]),
				stringOf(t["eta"]))
		}
		w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show task statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := http.Get(serverURL + "/api/v1/tasks/stats")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var stats map[string]interface{}
		json.Unmarshal(body, &stats)

		fmt.Println("Task Statistics:")
		fmt.Printf("  Total:       %v\n", stats["total"])
		fmt.Printf("  Pending:     %v\n", stats["pending"])
		fmt.Printf("  Downloading: %v\n", stats["downloading"])
		fmt.Printf("  Finished:    %v\n", stats["finished"])
		fmt.Printf("  Error:       %v\n", stats["error"])
		fmt.Printf("  Cancelled:   %v\n", stats["cancelled"])
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get task details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := http.Get(serverURL + "/api/v1/tasks/" + args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var task map[string]interface{}
		json.Unmarshal(body, &task)

		fmt.Printf("Task Details:\n")
		fmt.Printf("  ID:       %v\n", task["id"])
		fmt.Printf("  URL:      %s\n", task["url"])
		fmt.Printf("  Title:    %s\n", task["title"])
		fmt.Printf("  Status:   %s\n", task["status"])
		fmt.Printf("  Progress: %v%%\n", task["progress"])
		fmt.Printf("  Save to:  %s\n", task["save_path"])
		fmt.Printf("  Preset:   %s\n", task["format_preset"])
		fmt.Printf("  Created:  %s\n", task["created_at"])
	},
}

var startCmd = &cobra.Command{
	Use:   "start [id]",
	Short: "Start or retry a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		postAction(args[0], "start", "Task started")
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		postAction(args[0], "cancel", "Task cancelled")
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		req, _ := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/tasks/"+args[0], nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}
		fmt.Println("Task deleted")
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [id]",
	Short: "View engine log lines for a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := http.Get(serverURL + "/api/v1/tasks/" + args[0] + "/logs")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var result struct {
			Lines []string `json:"lines"`
		}
		json.Unmarshal(body, &result)
		for _, line := range result.Lines {
			fmt.Println(line)
		}
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List available format presets",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := http.Get(serverURL + "/api/v1/presets")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var result struct {
			Presets map[string]string `json:"presets"`
		}
		json.Unmarshal(body, &result)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PRESET\tFORMAT SELECTOR")
		for name, selector := range result.Presets {
			fmt.Fprintf(w, "%s\t%s\n", name, selector)
		}
		w.Flush()
	},
}

func postAction(id, action, successMsg string) {
	resp, err := http.Post(serverURL+"/api/v1/tasks/"+id+"/"+action, "application/json", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
		os.Exit(1)
	}
	fmt.Println(successMsg)
}

func init() {
	addCmd.Flags().StringP("save-path", "o", "", "Directory to save the download into")
	addCmd.Flags().StringP("preset", "f", "", "Format preset name or yt-dlp format selector")
	addCmd.Flags().String("proxy", "", "Proxy URL")
	addCmd.Flags().Int("fragments", 0, "Concurrent fragment downloads")
	addCmd.Flags().Bool("subs", false, "Write subtitles")
	addCmd.Flags().Bool("playlist", false, "Download the whole playlist")
	addCmd.Flags().String("playlist-items", "", "Playlist item selection, e.g. 1-5,8")
	addCmd.Flags().Bool("playlist-random", false, "Download playlist items in random order")
	addCmd.Flags().Int("max-downloads", 0, "Stop after this many downloads")
	addCmd.Flags().BoolP("start", "s", false, "Start the task immediately")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func stringOf(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
