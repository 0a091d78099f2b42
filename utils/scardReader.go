// Command scardReader waits for a card and sends it raw APDUs, one per
// argument, printing each response. Without arguments it sends Get
// Identifier.
//
//	go run ./utils FFCA000000 FFA40001028B0000 FFB0000000
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/skythen/apdu"

	"github.com/jenish-rudani/NFC_BALANCE_READER/internal/pcsc"
	"github.com/jenish-rudani/NFC_BALANCE_READER/internal/reader"
	"github.com/jenish-rudani/NFC_BALANCE_READER/internal/utils/log"
)

func main() {
	commands := os.Args[1:]
	if len(commands) == 0 {
		commands = []string{"FFCA000000"}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pc, err := pcsc.NewContext()
	if err != nil {
		fmt.Println("Error NewContext:", err)
		return
	}
	defer pc.Release()

	monitor := reader.NewMonitor(pc, reader.WithRetryOnTimeout(true))
	name, err := monitor.WaitForCard(ctx)
	if err != nil {
		fmt.Println("Error WaitForCard:", err)
		return
	}
	fmt.Println("Using reader:", name)

	card, err := pc.Connect(name)
	if err != nil {
		fmt.Println("Error Connect:", err)
		return
	}
	defer card.Close()

	for _, c := range commands {
		cmd, err := hex.DecodeString(strings.ReplaceAll(c, " ", ""))
		if err != nil {
			log.Errorf("bad command %q: %v", c, err)
			return
		}
		rsp, err := card.Transmit(cmd)
		if err != nil {
			fmt.Println("Error Transmit:", err)
			return
		}
		rapdu, err := apdu.ParseRapdu(rsp)
		if err != nil {
			fmt.Printf("> % X\n< % X (%v)\n", cmd, rsp, err)
			continue
		}
		fmt.Printf("> % X\n< % X SW %02X%02X\n", cmd, rapdu.Data, rapdu.SW1, rapdu.SW2)
	}
}
