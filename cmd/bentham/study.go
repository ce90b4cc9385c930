package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/benthamhq/bentham/pkg/client"
	"github.com/benthamhq/bentham/pkg/types"
)

var studyCmd = &cobra.Command{
	Use:   "study",
	Short: "Submit and manage studies",
}

var studyApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Submit a study manifest",
	Long: `Submit a study manifest from a YAML file. Field names match the
JSON API (camelCase).

Example manifest:
  name: brand visibility q3
  queries:
    - text: best crm for startups
  surfaces:
    - surfaceId: chatgpt-api
      required: true
  locations:
    - id: us-east
  completion:
    coverageThreshold: 0.95
    maxRetriesPerCell: 2
  deadline: 2026-09-01T00:00:00Z`,
	RunE: runStudyApply,
}

var studyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your studies",
	RunE:  runStudyList,
}

var studyStatusCmd = &cobra.Command{
	Use:   "status <study-id>",
	Short: "Show a study's progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudyStatus,
}

var studyResultsCmd = &cobra.Command{
	Use:   "results <study-id>",
	Short: "Fetch a study's per-cell results as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudyResults,
}

var studyCostsCmd = &cobra.Command{
	Use:   "costs <study-id>",
	Short: "Show a study's cost estimate and accrued spend",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudyCosts,
}

var studyPauseCmd = &cobra.Command{
	Use:   "pause <study-id>",
	Short: "Pause a running study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient(cmd).PauseStudy(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Study paused: %s\n", args[0])
		return nil
	},
}

var studyResumeCmd = &cobra.Command{
	Use:   "resume <study-id>",
	Short: "Resume a paused study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient(cmd).ResumeStudy(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Study resumed: %s\n", args[0])
		return nil
	},
}

var studyCancelCmd = &cobra.Command{
	Use:   "cancel <study-id>",
	Short: "Cancel a study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient(cmd).CancelStudy(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Study cancelled: %s\n", args[0])
		return nil
	},
}

func init() {
	studyCmd.PersistentFlags().String("server", "http://localhost:8080", "API server base URL")
	studyCmd.PersistentFlags().String("api-key", "", "API key (defaults to $BENTHAM_API_KEY)")

	studyApplyCmd.Flags().StringP("file", "f", "", "Manifest YAML file (required)")
	_ = studyApplyCmd.MarkFlagRequired("file")

	studyCmd.AddCommand(studyApplyCmd)
	studyCmd.AddCommand(studyListCmd)
	studyCmd.AddCommand(studyStatusCmd)
	studyCmd.AddCommand(studyResultsCmd)
	studyCmd.AddCommand(studyCostsCmd)
	studyCmd.AddCommand(studyPauseCmd)
	studyCmd.AddCommand(studyResumeCmd)
	studyCmd.AddCommand(studyCancelCmd)
	rootCmd.AddCommand(studyCmd)
}

func apiClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	apiKey, _ := cmd.Flags().GetString("api-key")
	if apiKey == "" {
		apiKey = os.Getenv("BENTHAM_API_KEY")
	}
	return client.New(server, apiKey)
}

// loadManifest parses a YAML manifest. The file uses the API's
// camelCase field names, so the document is routed through JSON
// decoding rather than yaml struct tags.
func loadManifest(path string) (*types.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert manifest: %w", err)
	}

	var manifest types.Manifest
	if err := json.Unmarshal(jsonData, &manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &manifest, nil
}

func runStudyApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	manifest, err := loadManifest(filename)
	if err != nil {
		return err
	}

	receipt, err := apiClient(cmd).CreateStudy(cmd.Context(), manifest)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Study submitted: %s\n", receipt.StudyID)
	fmt.Printf("  Status:  %s\n", receipt.Status)
	fmt.Printf("  Created: %s\n", receipt.CreatedAt.Format(time.RFC3339))
	return nil
}

func runStudyList(cmd *cobra.Command, args []string) error {
	studies, err := apiClient(cmd).ListStudies(cmd.Context())
	if err != nil {
		return err
	}
	if len(studies) == 0 {
		fmt.Println("No studies found")
		return nil
	}

	fmt.Printf("%-44s %-11s %-10s %s\n", "ID", "STATUS", "PROGRESS", "CREATED")
	for _, s := range studies {
		fmt.Printf("%-44s %-11s %3d%%       %s\n",
			s.StudyID, s.Status, s.Progress.CompletionPercentage,
			s.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func runStudyStatus(cmd *cobra.Command, args []string) error {
	view, err := apiClient(cmd).GetStudy(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Study:  %s\n", view.StudyID)
	fmt.Printf("Status: %s\n", view.Status)
	if view.FailureCause != "" {
		fmt.Printf("Cause:  %s\n", view.FailureCause)
	}
	fmt.Printf("Cells:  %d completed, %d failed, %d pending (%d%%)\n",
		view.Progress.Completed, view.Progress.Failed,
		view.Progress.Pending, view.Progress.CompletionPercentage)
	for _, cov := range view.Surfaces {
		fmt.Printf("  %-20s %d/%d succeeded (coverage %.2f)\n",
			cov.SurfaceID, cov.Succeeded, cov.Scheduled, cov.Coverage)
	}
	return nil
}

func runStudyResults(cmd *cobra.Command, args []string) error {
	view, err := apiClient(cmd).GetResults(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

func runStudyCosts(cmd *cobra.Command, args []string) error {
	report, err := apiClient(cmd).GetCosts(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Estimated: %.4f - %.4f %s\n", report.EstimatedMin, report.EstimatedMax, report.Currency)
	fmt.Printf("Accrued:   %.4f %s\n", report.Total, report.Currency)
	for surfaceID, amount := range report.Breakdown {
		fmt.Printf("  %-20s %.4f\n", surfaceID, amount)
	}
	return nil
}
