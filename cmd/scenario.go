package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/swedishdeveloper/digital-twin/app"
	"github.com/swedishdeveloper/digital-twin/config"
	"github.com/swedishdeveloper/digital-twin/core/model"
	"github.com/swedishdeveloper/digital-twin/infra/logger"
	"github.com/swedishdeveloper/digital-twin/qa/scenarios"
)

var scenarioTimeout time.Duration

var scenarioCmd = &cobra.Command{
	Use:   "scenario <file>",
	Short: "Replay a YAML booking scenario against the configured services",
	Args:  cobra.ExactArgs(1),
	RunE:  runScenario,
}

func init() {
	scenarioCmd.Flags().DurationVar(&scenarioTimeout, "timeout", 10*time.Minute, "abort the replay after this wall-clock duration")
	rootCmd.AddCommand(scenarioCmd)
}

func runScenario(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New("scenario")
	sc, err := scenarios.Load(args[0])
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Errorf("service close: %v", err)
		}
	}()

	deliveredC := make(chan string, len(sc.Bookings))
	var bookings []*model.Booking
	for _, def := range sc.Bookings {
		b := model.NewBooking(def.Params(svc.Clock()))
		ch := b.DeliveredEvents().Subscribe()
		go func(id string) {
			for range ch {
				deliveredC <- id
			}
		}(b.ID)
		bookings = append(bookings, b)
		if err := svc.SubmitBooking(b); err != nil {
			log.Warnf("booking %s not routable: %v", b.ID, err)
		}
	}

	want := sc.Expected.Delivered
	if want == 0 {
		want = len(bookings)
	}
	deadline := time.After(scenarioTimeout)
	delivered := 0
	for delivered < want {
		select {
		case id := <-deliveredC:
			delivered++
			log.Infof("delivered %s (%d/%d)", id, delivered, want)
		case <-deadline:
			return fmt.Errorf("scenario %s: %d of %d delivered before timeout", sc.Name, delivered, want)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	log.Infof("scenario %s complete: %d bookings delivered", sc.Name, delivered)
	return nil
}
