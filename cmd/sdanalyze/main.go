package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/soypat/saleae"
	"github.com/soypat/saleae/analyzers"
)

type Options struct {
	// Collapse consecutive identical transactions into one line with a count.
	Collapse bool
	// Omit the data phase annotation of block transfers.
	OmitData bool
	// Only print transactions whose R1 has error bits set.
	ErrorsOnly bool
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "sdanalyze - Decode Saleae binary digital captures of an SD card on an SPI bus.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	mosi := flag.String("f-mosi", "digital_1.bin", "Input filename: SPI MOSI (host to card) data.")
	miso := flag.String("f-miso", "digital_2.bin", "Input filename: SPI MISO (card to host) data.")
	enable := flag.String("f-cs", "digital_0.bin", "Input filename: SPI CS data.")
	clk := flag.String("f-clk", "digital_3.bin", "Input filename: SPI clock data.")
	csvFile := flag.String("csv", "", "Input filename: Saleae digital CSV export with columns Time,CS,MOSI,MISO,CLK. Overrides binary inputs.")
	output := flag.String("o", "", "Output filename of decoded SD transactions. Defaults to stdout.")
	collapse := flag.Bool("collapse", true, "Collapse consecutive identical transactions, such as operating condition polling.")
	omitData := flag.Bool("omit-data", false, "Omit block transfer annotations.")
	errorsOnly := flag.Bool("errors", false, "Only print transactions that failed.")
	flag.Parse()

	opts := Options{
		Collapse:   *collapse,
		OmitData:   *omitData,
		ErrorsOnly: *errorsOnly,
	}
	start := time.Now()
	var err error
	if *csvFile != "" {
		err = opts.runCSV(*csvFile, *output)
	} else {
		err = opts.run(*mosi, *miso, *enable, *clk, *output)
	}
	if err != nil {
		log.Fatal(err.Error())
	}
	log.Println("finished in", time.Since(start))
}

func (opts *Options) run(fmosi, fmiso, fenable, fclk, output string) error {
	txs, err := processSpiFiles(fmosi, fmiso, fclk, fenable)
	if err != nil {
		return err
	}
	var exchanges []exchange
	for _, tx := range txs {
		exchanges = append(exchanges, exchange{MOSI: tx.SDO, MISO: tx.SDI, Start: tx.StartTime()})
	}
	return opts.output(output, exchanges)
}

func (opts *Options) runCSV(filename, output string) error {
	fp, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer fp.Close()
	exchanges, err := readCSV(fp)
	if err != nil {
		return err
	}
	return opts.output(output, exchanges)
}

func (opts *Options) output(output string, exchanges []exchange) error {
	var w io.Writer = os.Stdout
	if output != "" {
		fp, err := os.Create(output)
		if err != nil {
			return err
		}
		defer fp.Close()
		w = fp
	}
	return opts.print(w, decodeAll(exchanges))
}

func (opts *Options) print(w io.Writer, txs []sdtx) error {
	if opts.Collapse {
		txs = collapse(txs)
	}
	for _, tx := range txs {
		if opts.ErrorsOnly && tx.ok() {
			continue
		}
		if opts.OmitData {
			tx.Data = ""
		}
		if _, err := fmt.Fprintln(w, tx.String()); err != nil {
			return err
		}
	}
	return nil
}

func processSpiFiles(fmosi, fmiso, fclk, fenable string) ([]analyzers.TxSPI, error) {
	mosi, err := opendigital(fmosi)
	if err != nil {
		return nil, err
	}
	miso, err := opendigital(fmiso)
	if err != nil {
		return nil, err
	}
	clk, err := opendigital(fclk)
	if err != nil {
		return nil, err
	}
	enable, err := opendigital(fenable)
	if err != nil {
		return nil, err
	}
	spi := analyzers.SPI{}
	txs, _ := spi.Scan(clk, enable, mosi, miso)
	return txs, nil
}

func opendigital(filename string) (*saleae.DigitalFile, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	df, err := saleae.ReadDigitalFile(fp)
	if err != nil {
		return nil, err
	}
	return df, nil
}
