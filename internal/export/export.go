// Package export writes eligibility snapshots to CSV or JSON report files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/candymint/internal/eligibility"
)

// Format represents the export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Options configures the export behavior
type Options struct {
	Format     Format
	TierFilter string // only this tier
	OnlyActive bool   // only tiers open to the wallet
	OutputDir  string
}

// Summary aggregates an exported set of snapshots.
type Summary struct {
	Tiers       int    `json:"tiers"`
	Active      int    `json:"active"`
	SoldOut     int    `json:"sold_out"`
	Whitelisted int    `json:"whitelisted"`
	Remaining   uint64 `json:"remaining_items"`
	// CheapestActive is the lowest effective price among active tiers, 0 when none.
	CheapestActive uint64 `json:"cheapest_active_price"`
}

var csvHeaders = []string{
	"tier", "active", "live", "presale", "whitelisted", "whitelist_only",
	"effective_price", "payment_mint", "sufficient_balance",
	"items_available", "items_redeemed", "remaining_items", "sold_out",
	"go_live_at", "sale_ends_at", "evaluated_at",
}

// Exporter handles snapshot export
type Exporter struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewExporter creates a new snapshot exporter
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{
		logger: logger.Named("export"),
		now:    time.Now,
	}
}

// Export writes snapshots matching options and returns the file path.
func (e *Exporter) Export(snaps []eligibility.Snapshot, options Options) (string, error) {
	filtered := filter(snaps, options)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no snapshots match the export criteria")
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Tier < filtered[j].Tier
	})

	outputPath := filepath.Join(options.OutputDir, e.filename(options))
	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = writeCSV(filtered, outputPath)
	case FormatJSON:
		err = e.writeJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	e.logger.Info("Snapshots exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))
	return outputPath, nil
}

func filter(snaps []eligibility.Snapshot, options Options) []eligibility.Snapshot {
	var out []eligibility.Snapshot
	for _, s := range snaps {
		if options.TierFilter != "" && s.Tier != options.TierFilter {
			continue
		}
		if options.OnlyActive && !s.IsActive {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (e *Exporter) filename(options Options) string {
	prefix := "snapshots_all"
	if options.TierFilter != "" {
		prefix = "snapshots_" + options.TierFilter
	}
	return fmt.Sprintf("%s_%s.%s", prefix, e.now().Format("20060102_150405"), options.Format)
}

func writeCSV(snaps []eligibility.Snapshot, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeaders); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, s := range snaps {
		if err := writer.Write(csvRow(s)); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func csvRow(s eligibility.Snapshot) []string {
	optTime := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	}
	paymentMint := ""
	if s.PaymentMint != nil {
		paymentMint = s.PaymentMint.String()
	}
	return []string{
		s.Tier,
		strconv.FormatBool(s.IsActive),
		strconv.FormatBool(s.IsLive),
		strconv.FormatBool(s.IsPresale),
		strconv.FormatBool(s.IsWhitelisted),
		strconv.FormatBool(s.IsWhitelistOnly),
		strconv.FormatUint(s.EffectivePrice, 10),
		paymentMint,
		strconv.FormatBool(s.HasSufficientBalance),
		strconv.FormatUint(s.ItemsAvailable, 10),
		strconv.FormatUint(s.ItemsRedeemed, 10),
		strconv.FormatUint(s.RemainingItems, 10),
		strconv.FormatBool(s.IsSoldOut),
		optTime(s.GoLiveAt),
		optTime(s.SaleEndsAt),
		s.EvaluatedAt.UTC().Format(time.RFC3339),
	}
}

func (e *Exporter) writeJSON(snaps []eligibility.Snapshot, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	data := struct {
		ExportTime time.Time              `json:"export_time"`
		Snapshots  []eligibility.Snapshot `json:"snapshots"`
		Summary    Summary                `json:"summary"`
	}{
		ExportTime: e.now().UTC(),
		Snapshots:  snaps,
		Summary:    Summarize(snaps),
	}
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// Summarize calculates summary statistics for snaps.
func Summarize(snaps []eligibility.Snapshot) Summary {
	sum := Summary{Tiers: len(snaps)}
	for _, s := range snaps {
		sum.Remaining += s.RemainingItems
		if s.IsSoldOut {
			sum.SoldOut++
		}
		if s.IsWhitelisted {
			sum.Whitelisted++
		}
		if s.IsActive {
			sum.Active++
			if sum.CheapestActive == 0 || s.EffectivePrice < sum.CheapestActive {
				sum.CheapestActive = s.EffectivePrice
			}
		}
	}
	return sum
}
