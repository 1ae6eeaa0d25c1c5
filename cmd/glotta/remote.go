package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/glottahq/glotta/pkg/client"
	"github.com/glottahq/glotta/pkg/observer"
	"github.com/glottahq/glotta/pkg/types"
)

const defaultServer = "http://localhost:8080"

func remoteClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	return client.New(server)
}

var submitCmd = &cobra.Command{
	Use:   "submit FILE [FILE...]",
	Short: "Submit images for translation",
	Long: `Upload up to 10 image files as a single translation task.

Examples:
  # Translate two pages into the default language (Vietnamese)
  glotta submit page1.png page2.png

  # Translate into Japanese and wait for the final result
  glotta submit --language Japanese --wait scan.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lang, _ := cmd.Flags().GetString("language")
		wait, _ := cmd.Flags().GetBool("wait")
		timeout, _ := cmd.Flags().GetInt("timeout")

		c := remoteClient(cmd)
		ack, err := c.Submit(args, lang)
		if err != nil {
			return fmt.Errorf("submit failed: %w", err)
		}

		fmt.Printf("✓ Task submitted: %s\n", ack.TaskID)
		fmt.Printf("  Status: %s\n", ack.Status)
		fmt.Printf("  Estimated processing time: %ds\n", ack.EstimatedProcessingTime)

		if !wait {
			fmt.Println()
			fmt.Printf("Fetch results with:\n  glotta result %s\n", ack.TaskID)
			return nil
		}

		fmt.Println()
		return waitForResult(c, ack.TaskID, timeout)
	},
}

var resultCmd = &cobra.Command{
	Use:   "result TASK_ID",
	Short: "Fetch a task's translation results",
	Long: `Long-poll the server for a task's results. The server answers as
soon as any image finishes, so an in-flight task returns a partial
snapshot rather than blocking until every image is done.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetInt("timeout")

		res, err := remoteClient(cmd).Result(args[0], timeout)
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	},
}

// waitForResult polls until the task reaches a terminal state. The server
// answers each poll as soon as any image lands, so successive calls pace
// themselves with a short sleep.
func waitForResult(c *client.Client, taskID string, timeoutSeconds int) error {
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)

	for {
		res, err := c.Result(taskID, 10)
		if err != nil {
			return err
		}
		if res.Status.Terminal() {
			printResult(res)
			if res.Status == types.TaskStatusFailed {
				return fmt.Errorf("task failed: %s", res.Error)
			}
			return nil
		}

		fmt.Printf("  %d/%d images done...\n", res.CompletedImages, res.TotalImages)
		if time.Now().After(deadline) {
			printResult(res)
			return fmt.Errorf("timed out after %ds; task %s is still %s", timeoutSeconds, taskID, res.Status)
		}
		time.Sleep(2 * time.Second)
	}
}

func printResult(res *observer.Result) {
	fmt.Printf("Task:     %s\n", res.TaskID)
	fmt.Printf("Status:   %s\n", res.Status)
	fmt.Printf("Language: %s\n", res.TargetLanguage)
	fmt.Printf("Progress: %d/%d images (%.0f%%)\n",
		res.CompletedImages, res.TotalImages, res.ProgressPercentage)
	if res.ProcessingTime > 0 {
		fmt.Printf("Took:     %.1fs\n", res.ProcessingTime)
	}
	if res.Error != "" {
		fmt.Printf("Error:    %s\n", res.Error)
	}
	if res.EstimatedWaitTime > 0 {
		fmt.Printf("Estimated wait: %ds\n", res.EstimatedWaitTime)
	}

	if len(res.PartialResults) == 0 {
		return
	}
	fmt.Println()
	for _, img := range res.PartialResults {
		switch img.Status {
		case types.TaskStatusCompleted:
			fmt.Printf("  [%d] %s\n", img.Index, indentText(img.TranslatedText))
		case types.TaskStatusFailed:
			fmt.Printf("  [%d] failed: %s\n", img.Index, img.Error)
		default:
			fmt.Printf("  [%d] %s\n", img.Index, img.Status)
		}
	}
}

// indentText keeps multi-line translations aligned under their index tag.
func indentText(s string) string {
	return strings.ReplaceAll(s, "\n", "\n      ")
}

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List supported target languages",
	RunE: func(cmd *cobra.Command, args []string) error {
		langs, err := remoteClient(cmd).Languages()
		if err != nil {
			return err
		}
		for _, l := range langs.SupportedLanguages {
			marker := " "
			if l.Name == langs.Default {
				marker = "*"
			}
			fmt.Printf("%s %-22s %s\n", marker, l.Code, l.Name)
		}
		fmt.Println()
		fmt.Printf("* default (%s)\n", langs.Default)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue, worker, and cluster statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := remoteClient(cmd).Stats()
		if err != nil {
			return err
		}

		fmt.Println("Queue:")
		fmt.Printf("  Pending:    %d\n", stats.Queue.Pending)
		fmt.Printf("  Processing: %d\n", stats.Queue.Processing)
		fmt.Printf("  Total:      %d\n", stats.Queue.Total)

		fmt.Println("Workers (this instance):")
		fmt.Printf("  Total:      %d (%d active, %d idle)\n",
			stats.Workers.TotalWorkers, stats.Workers.ActiveWorkers, stats.Workers.IdleWorkers)
		fmt.Printf("  Processed:  %d (%.1f%% success)\n",
			stats.Workers.TasksProcessed, stats.Workers.SuccessRate)

		fmt.Println("Cluster:")
		fmt.Printf("  Instances:  %d\n", stats.Cluster.TotalInstances)
		fmt.Printf("  Workers:    %d\n", stats.Cluster.TotalWorkers)
		for _, inst := range stats.Cluster.Instances {
			fmt.Printf("    %-24s workers=%-3d active=%-3d processed=%d\n",
				inst.InstanceID, inst.WorkerCount, inst.ActiveWorkers, inst.ProcessedTasks)
		}

		fmt.Println("API keys:")
		fmt.Printf("  Active:     %d/%d\n", stats.APIKeys.Active, stats.APIKeys.Total)

		fmt.Println("Capacity estimate:")
		fmt.Printf("  Requests/min: %d\n", stats.CapacityEstimate.RequestsPerMinute)
		fmt.Printf("  Workers:      %d now, %d max\n",
			stats.CapacityEstimate.CurrentWorkers, stats.CapacityEstimate.MaxWorkers)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := remoteClient(cmd).Health()
		if err != nil {
			return err
		}

		fmt.Printf("Status:    %s\n", h.Status)
		fmt.Printf("Service:   %s %s\n", h.Service, h.Version)
		fmt.Printf("Store:     %s\n", okOrDown(h.StoreConnected))
		fmt.Printf("Provider:  %s\n", okOrDown(h.ProviderHealthy))
		fmt.Printf("API keys:  %d\n", h.APIKeysCount)

		if h.Status != "healthy" {
			return fmt.Errorf("service is %s", h.Status)
		}
		return nil
	},
}

func okOrDown(ok bool) string {
	if ok {
		return "connected"
	}
	return "unreachable"
}

func init() {
	for _, cmd := range []*cobra.Command{submitCmd, resultCmd, languagesCmd, statsCmd, healthCmd} {
		cmd.Flags().String("server", defaultServer, "Server base URL")
	}

	submitCmd.Flags().StringP("language", "l", "", "Target language (name or code; server default when empty)")
	submitCmd.Flags().Bool("wait", false, "Wait for the final result")
	submitCmd.Flags().Int("timeout", 300, "Seconds to wait with --wait")

	resultCmd.Flags().Int("timeout", 60, "Long-poll window in seconds")
}
