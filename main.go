package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kr/pretty"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/jenish-rudani/NFC_BALANCE_READER/internal/config"
	"github.com/jenish-rudani/NFC_BALANCE_READER/internal/nfc"
	"github.com/jenish-rudani/NFC_BALANCE_READER/internal/pcsc"
	"github.com/jenish-rudani/NFC_BALANCE_READER/internal/reader"
	"github.com/jenish-rudani/NFC_BALANCE_READER/internal/utils/log"
)

const (
	exitOK = iota
	exitFatal
	exitCard
	exitCommunication
)

var (
	app        = kingpin.New("nfc-balance", "Waits for a contactless card on a PC/SC reader and prints its IDm and stored-value balance.")
	configPath = app.Flag("config", "YAML configuration file.").Short('c').String()
	logLevel   = app.Flag("log-level", "Log level (debug, info, warn, error).").String()
	logFormat  = app.Flag("log-format", "Log format (text, json, nocolor).").String()
	dump       = app.Flag("dump", "Pretty-print everything read from readers and cards.").Bool()

	readCmd    = app.Command("read", "Wait for a card and read its IDm and balance.").Default()
	timeout    = readCmd.Flag("timeout", "How long one reader status wait may block.").Duration()
	retry      = readCmd.Flag("retry", "Keep polling after a wait times out.").Bool()
	noBalance  = readCmd.Flag("no-balance", "Only read the IDm.").Bool()
	layoutName = readCmd.Flag("layout", "Balance layout to use (see layouts in the config).").String()
	unpower    = readCmd.Flag("unpower", "Power the card down on disconnect.").Bool()

	readersCmd = app.Command("readers", "List attached readers and their state.")
)

func main() {
	app.Version(fmt.Sprintf("NFC Balance Reader v%s\nGit commit: %s\nBuilt at: %s", VERSION, GITCOMMIT, BUILDTIME))
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	applyFlags(cfg)
	initLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var code int
	switch command {
	case readCmd.FullCommand():
		code = readCard(ctx, cfg)
	case readersCmd.FullCommand():
		code = listReaders(ctx)
	default:
		kingpin.FatalUsage("Unrecognized command")
	}
	stop()
	os.Exit(code)
}

func applyFlags(cfg *config.Config) {
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *timeout > 0 {
		cfg.Monitor.Timeout = *timeout
	}
	if *retry {
		cfg.Monitor.RetryOnTimeout = true
	}
	if *noBalance {
		cfg.Card.Balance = false
	}
	if *layoutName != "" {
		cfg.Card.Layout = *layoutName
	}
	if *unpower {
		cfg.Card.Unpower = true
	}
}

func initLogging(cfg config.Log) {
	log.SetLevel(cfg.Level)
	log.SetFormat(cfg.Format)
	log.SetSourceFormat(cfg.Source)
}

func readCard(ctx context.Context, cfg *config.Config) int {
	scan := log.With("scan", uuid.NewString())

	var layout *nfc.BalanceLayout
	if cfg.Card.Balance {
		l, err := cfg.Layout()
		if err != nil {
			scan.Errorf("%v", err)
			return exitFatal
		}
		layout = &nfc.BalanceLayout{
			Name:        cfg.Card.Layout,
			ServiceCode: l.ServiceCode,
			LowOffset:   l.LowOffset,
			HighOffset:  l.HighOffset,
		}
	}

	pc, err := pcsc.NewContext()
	if err != nil {
		scan.Errorf("%v", err)
		return exitFatal
	}
	defer pc.Release()

	monitor := reader.NewMonitor(pc,
		reader.WithTimeout(cfg.Monitor.Timeout),
		reader.WithRetryOnTimeout(cfg.Monitor.RetryOnTimeout),
		reader.WithLogger(scan),
	)
	scan.Info("waiting for a card ...")
	name, err := monitor.WaitForCard(ctx)
	if err != nil {
		scan.Errorf("%v", err)
		return exitCode(err)
	}

	card, err := pc.Connect(name)
	if errors.Is(err, pcsc.ErrNoCompatibleCard) {
		scan.Warnf("%v", err)
		fmt.Println("Card not supported")
		return exitOK
	}
	if err != nil {
		scan.Errorf("%v", err)
		return exitCommunication
	}
	defer disconnect(scan, card, cfg.Card.Unpower)

	cardLog := scan.With("reader", name)
	cr, err := nfc.NewCardReader(card, nfc.WithLogger(cardLog), nfc.WithReaderName(name))
	if err != nil {
		cardLog.Errorf("%v", err)
		return exitCode(err)
	}
	fmt.Printf("IDm: %s\n", cr.IDm())

	info, err := cr.ReadInfo(layout)
	if err != nil {
		cardLog.Errorf("%v", err)
		return exitCode(err)
	}
	if info.Balance != nil {
		fmt.Printf("Balance: %d yen\n", *info.Balance)
	}
	if *dump {
		fmt.Printf("%# v\n", pretty.Formatter(info))
	}
	return exitOK
}

func disconnect(l log.Logger, card *pcsc.Card, unpower bool) {
	var err error
	if unpower {
		err = card.DisconnectUnpower()
	} else {
		err = card.Close()
	}
	if err != nil {
		l.Warnf("failed to disconnect card on %s: %v", card.Reader(), err)
	}
}

// listReaders runs one short monitor cycle so every reader reports its
// current state.
func listReaders(ctx context.Context) int {
	pc, err := pcsc.NewContext()
	if err != nil {
		log.Errorf("%v", err)
		return exitFatal
	}
	defer pc.Release()

	monitor := reader.NewMonitor(pc, reader.WithTimeout(time.Second))
	if _, err := monitor.Poll(ctx); err != nil && !errors.Is(err, reader.ErrWaitTimeout) {
		log.Errorf("%v", err)
		return exitCode(err)
	}

	observations := monitor.Observations()
	if len(observations) <= 1 {
		fmt.Println("No readers found")
		return exitOK
	}
	for i, rs := range observations[1:] {
		fmt.Printf("reader %d: %s [%s]\n", i, rs.Name, rs.EventState)
		if *dump {
			fmt.Printf("%# v\n", pretty.Formatter(rs))
		}
	}
	return exitOK
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, nfc.ErrCommunication):
		return exitCommunication
	case errors.Is(err, nfc.ErrInvalidIdentity),
		errors.Is(err, nfc.ErrServiceNotFound),
		errors.Is(err, nfc.ErrReadFailed):
		return exitCard
	default:
		return exitFatal
	}
}
