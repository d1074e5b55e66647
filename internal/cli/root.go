package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/apresai/paperq/internal/answer"
	"github.com/apresai/paperq/internal/config"
	"github.com/apresai/paperq/internal/ingest"
	"github.com/apresai/paperq/internal/metadata"
	"github.com/apresai/paperq/internal/observability"
	"github.com/apresai/paperq/internal/pipeline"
	"github.com/apresai/paperq/internal/progress"
	"github.com/apresai/paperq/internal/question"
	"github.com/apresai/paperq/internal/segment"
	"github.com/apresai/paperq/internal/storage"
	"github.com/apresai/paperq/internal/store"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "paperq",
	Short:         "Extract Group A/B/C questions from exam paper PDFs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "paperq %s\n", Version)
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract questions from a paper (PDF, text file or URL)",
	RunE:  runExtract,
}

var metadataCmd = &cobra.Command{
	Use:   "metadata <filename>",
	Short: "Print the paper metadata inferred from a filename",
	Args:  cobra.ExactArgs(1),
	RunE:  runMetadata,
}

var sectionsCmd = &cobra.Command{
	Use:   "sections",
	Short: "Print the Group-A/B/C sections found in a paper",
	RunE:  runSections,
}

var (
	flagConfig  string
	flagVerbose bool

	flagInput          string
	flagOutput         string
	flagFormat         string
	flagAnswers        bool
	flagModel          string
	flagConcurrency    int
	flagStore          string
	flagDSN            string
	flagTable          string
	flagAllowDuplicate bool
	flagNoOCR          bool
	flagTUI            bool
	flagUpload         bool
	flagPaper          metadata.Paper
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable detailed logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(metadataCmd)
	rootCmd.AddCommand(sectionsCmd)

	f := extractCmd.Flags()
	f.StringVarP(&flagInput, "input", "i", "", "Paper to read (PDF path, text file path, or URL)")
	f.StringVarP(&flagOutput, "output", "o", "", "Write questions to a .csv or .json file")
	f.StringVarP(&flagFormat, "format", "F", "table", "Stdout format when no --output: table, json, csv")
	f.BoolVarP(&flagAnswers, "answers", "a", false, "Generate model answers")
	f.StringVarP(&flagModel, "model", "m", "", "Answer model: "+strings.Join(answer.Models(), ", "))
	f.IntVar(&flagConcurrency, "concurrency", 0, "Answer requests in flight")
	f.StringVar(&flagStore, "store", "", "Persist questions: none, memory, sqlite, postgres, dynamodb")
	f.StringVar(&flagDSN, "dsn", "", "Database DSN for sqlite or postgres")
	f.StringVar(&flagTable, "table", "", "DynamoDB table")
	f.BoolVar(&flagAllowDuplicate, "allow-duplicate", false, "Store even if the paper was processed before")
	f.BoolVar(&flagNoOCR, "no-ocr", false, "Disable the OCR fallback for scanned PDFs")
	f.BoolVarP(&flagTUI, "tui", "t", false, "Browse the extracted questions interactively")
	f.BoolVar(&flagUpload, "upload", false, "Upload --output to the configured S3 bucket")
	f.StringVar(&flagPaper.Semester, "semester", "", "Override semester (e.g. SEM5)")
	f.StringVar(&flagPaper.SubjectCode, "subject-code", "", "Override subject code")
	f.StringVar(&flagPaper.SubjectName, "subject-name", "", "Override subject name")
	f.IntVar(&flagPaper.Year, "year", 0, "Override exam year")
	f.StringVar(&flagPaper.University, "university", "", "Override university")
	f.StringVar(&flagPaper.PaperType, "paper-type", "", "Override paper type")

	sectionsCmd.Flags().StringVarP(&flagInput, "input", "i", "", "Paper to read (PDF path, text file path, or URL)")
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads --config and applies the flags that override it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store.Driver = flagStore
	}
	if flags.Changed("dsn") {
		cfg.Store.DSN = flagDSN
	}
	if flags.Changed("table") {
		cfg.Store.Table = flagTable
	}
	if flags.Changed("model") {
		cfg.Answer.Model = flagModel
	}
	if flags.Changed("concurrency") {
		cfg.Answer.Concurrency = flagConcurrency
	}
	if flags.Changed("no-ocr") {
		cfg.Ingest.OCR = !flagNoOCR
	}
	// the CLI persists nothing unless asked
	if _, env := os.LookupEnv("DB_DRIVER"); !env && !flags.Changed("store") && flagConfig == "" {
		cfg.Store.Driver = store.BackendNone
	}
	return cfg, cfg.Validate()
}

// newLogger keeps the terminal quiet for the progress bar unless -v is set.
func newLogger() (*slog.Logger, error) {
	level := "warn"
	if flagVerbose {
		level = "debug"
	}
	return observability.NewLogger(observability.LogOptions{Level: level, Format: "text", Out: os.Stderr})
}

func ingestOptions(cfg config.Config) ingest.Options {
	opts := ingest.Options{MaxBytes: cfg.MaxPDFBytes()}
	if cfg.Ingest.OCR {
		opts.OCR = ingest.NewTesseractOCR()
	}
	return opts
}

func dynamoClient(region string) func(context.Context) (store.DynamoAPI, error) {
	return func(ctx context.Context) (store.DynamoAPI, error) {
		awsCfg, err := observability.LoadAWSConfig(ctx, region)
		if err != nil {
			return nil, err
		}
		return dynamodb.NewFromConfig(awsCfg), nil
	}
}

func runExtract(cmd *cobra.Command, args []string) error {
	if flagInput == "" {
		return fmt.Errorf("--input (-i) is required")
	}
	switch flagFormat {
	case "table", pipeline.FormatJSON, pipeline.FormatCSV:
	default:
		return fmt.Errorf("invalid format %q: must be table, json, or csv", flagFormat)
	}
	if flagUpload && flagOutput == "" {
		return fmt.Errorf("--upload needs --output")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	backend, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, cfg.Store.Table, dynamoClient(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()

	opts := pipeline.Options{
		Input:          flagInput,
		Paper:          flagPaper,
		Ingest:         ingestOptions(cfg),
		Store:          backend.Questions,
		AllowDuplicate: flagAllowDuplicate,
		Concurrency:    cfg.Answer.Concurrency,
		Output:         flagOutput,
		Logger:         logger,
	}
	if flagAnswers {
		gen, err := answer.NewGenerator(ctx, cfg.Answer.Model)
		if err != nil {
			return err
		}
		opts.Generator = gen
	}

	// Wire up progress bar when not in verbose mode
	var bar *progress.BarRenderer
	if !flagVerbose && !flagTUI {
		bar = progress.NewBarRenderer(os.Stderr)
		opts.Progress = bar.Handle
	}

	res, err := pipeline.Run(ctx, opts)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	if flagUpload {
		if cfg.AWS.Bucket == "" {
			return fmt.Errorf("--upload needs S3_BUCKET or aws.bucket in the config")
		}
		awsCfg, err := observability.LoadAWSConfig(ctx, cfg.AWS.Region)
		if err != nil {
			return err
		}
		st := storage.NewStorage(s3.NewFromConfig(awsCfg), cfg.AWS.Bucket)
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(flagOutput), "."))
		uri, err := st.Upload(ctx, storage.ExportKey(res.PaperID, ext), flagOutput)
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "Uploaded export", "uri", uri)
	}

	if flagTUI {
		return runReview(reviewTitle(res), res.Records, answerMap(res.Answers))
	}
	if flagOutput != "" {
		return nil
	}
	return printResult(cmd.OutOrStdout(), flagFormat, res)
}

func reviewTitle(res *pipeline.Result) string {
	p := res.Paper
	parts := []string{"paperq"}
	for _, s := range []string{p.Semester, p.SubjectCode, p.SubjectName} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if p.Year != 0 {
		parts = append(parts, fmt.Sprint(p.Year))
	}
	return strings.Join(parts, " · ")
}

func answerMap(answers []answer.Answer) map[string]string {
	m := make(map[string]string, len(answers))
	for _, a := range answers {
		if a.Err == nil {
			m[a.Record.ID()] = a.Text
		}
	}
	return m
}

func printResult(w io.Writer, format string, res *pipeline.Result) error {
	switch format {
	case pipeline.FormatJSON:
		return pipeline.WriteJSON(w, res)
	case pipeline.FormatCSV:
		return question.WriteCSV(w, res.Records)
	}
	if res.NoQuestions() {
		_, err := fmt.Fprintln(w, res.Message())
		return err
	}
	_, err := fmt.Fprintln(w, renderTable(res.Records, answerMap(res.Answers)))
	return err
}

func renderTable(records []question.Record, answers map[string]string) string {
	headers := []string{"ID", "TYPE", "QUESTION", "OPTIONS"}
	if len(answers) > 0 {
		headers = append(headers, "ANSWER")
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))).
		Headers(headers...)
	for _, r := range records {
		row := []string{r.ID(), string(r.Kind), r.Text, question.JoinOptions(r.Options)}
		if len(answers) > 0 {
			row = append(row, truncate(answers[r.ID()], 60))
		}
		t.Row(row...)
	}
	return t.Render()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func runMetadata(cmd *cobra.Command, args []string) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	defer enc.Close()
	return enc.Encode(metadata.FromFilename(args[0]))
}

func runSections(cmd *cobra.Command, args []string) error {
	if flagInput == "" {
		return fmt.Errorf("--input (-i) is required")
	}
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	doc, err := ingest.NewIngester(flagInput, ingestOptions(cfg)).Ingest(cmd.Context(), flagInput)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "source: %s (%s, %d words)\n", doc.Source, doc.Method, doc.WordCount)
	sections := segment.Sections(doc.Text)
	for _, g := range []question.Group{question.GroupA, question.GroupB, question.GroupC} {
		text := sections[g]
		fmt.Fprintf(w, "\n%s\n", titleStyle.Render(fmt.Sprintf("== %s (%d chars) ==", g.Label(), len(text))))
		fmt.Fprintln(w, strings.TrimSpace(text))
	}
	return nil
}
