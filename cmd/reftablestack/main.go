// Command reftablestack is a thin CLI wrapper around the reftable.Stack
// facade: open a directory, append a reference, compact it, or clean up
// orphaned tables left by an unclean shutdown.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/attic-labs/kingpin"
	"go.uber.org/zap"

	"github.com/dolthub/reftable-stack"
	"github.com/dolthub/reftable-stack/internal/table"
)

func main() {
	app := kingpin.New("reftablestack", "Stack manager for a log-structured reference store.")
	dirFlag := app.Flag("dir", "directory holding tables.list and table files").Required().String()

	addCmd := app.Command("add", "append a reference")
	addName := addCmd.Arg("name", "reference name").Required().String()
	addTarget := addCmd.Arg("hash", "hex-encoded primary hash").Required().String()

	compactCmd := app.Command("compact", "compact the entire stack into one table")

	cleanCmd := app.Command("clean", "remove orphaned table files")

	readCmd := app.Command("read", "read a reference")
	readName := readCmd.Arg("name", "reference name").Required().String()

	cmd, err := app.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	st, err := reftable.Open(*dirFlag, reftable.Options{Logger: logger})
	if err != nil {
		logger.Fatal("open stack", zap.Error(err))
	}
	defer st.Close()

	switch cmd {
	case addCmd.FullCommand():
		hash, herr := hex.DecodeString(*addTarget)
		if herr != nil {
			logger.Fatal("add: hash is not hex", zap.Error(herr))
		}
		err = st.Add(func(w *table.Writer) error {
			idx := st.NextUpdateIndex()
			w.SetLimits(idx, idx)
			return w.AddRef(table.RefRecord{
				Name:        *addName,
				UpdateIndex: idx,
				Value:       table.RefValue{Hash: hash},
			})
		})
		if err != nil {
			logger.Fatal("add", zap.Error(err))
		}
	case compactCmd.FullCommand():
		if err := st.CompactAll(reftable.ExpiryPolicy{}); err != nil {
			logger.Fatal("compact", zap.Error(err))
		}
	case cleanCmd.FullCommand():
		if err := st.Clean(); err != nil {
			logger.Fatal("clean", zap.Error(err))
		}
	case readCmd.FullCommand():
		rec, ok := st.ReadRef(*readName)
		if !ok {
			fmt.Println("not found")
			os.Exit(1)
		}
		fmt.Printf("%s -> %x\n", rec.Name, rec.Value.Hash)
	}
}
