package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// CSV column indices of a Saleae digital export: Time [s], then one column per
// channel in the order the probes are attached.
const (
	colTime = 0
	colCS   = 1
	colMOSI = 2
	colMISO = 3
	colCLK  = 4
)

// readCSV decodes a Saleae digital CSV export into exchanges. Bits are sampled
// on the clock's rising edge, most significant bit first.
func readCSV(r io.Reader) ([]exchange, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}
	return parseRecords(records[1:])
}

func parseRecords(records [][]string) ([]exchange, error) {
	var exchanges []exchange
	var current exchange
	var mosiByte, misoByte uint8
	var bitCounter uint8
	prevCS, prevCLK := 1, 0
	for i, record := range records {
		if len(record) <= colCLK {
			return nil, fmt.Errorf("record %d: want %d columns, got %d", i+2, colCLK+1, len(record))
		}
		var vals [colCLK + 1]int
		for col := colCS; col <= colCLK; col++ {
			v, err := strconv.Atoi(record[col])
			if err != nil {
				return nil, fmt.Errorf("record %d column %d: %w", i+2, col, err)
			}
			vals[col] = v
		}
		cs, clk := vals[colCS], vals[colCLK]
		if prevCS == 1 && cs == 0 {
			// Chip select asserted.
			current = exchange{}
			current.Start, _ = strconv.ParseFloat(record[colTime], 64)
			mosiByte, misoByte, bitCounter = 0, 0, 0
		}
		if cs == 0 && prevCLK == 0 && clk == 1 {
			mosiByte = mosiByte<<1 | uint8(vals[colMOSI]&1)
			misoByte = misoByte<<1 | uint8(vals[colMISO]&1)
			bitCounter++
			if bitCounter == 8 {
				current.MOSI = append(current.MOSI, mosiByte)
				current.MISO = append(current.MISO, misoByte)
				mosiByte, misoByte, bitCounter = 0, 0, 0
			}
		}
		if prevCS == 0 && cs == 1 && len(current.MOSI) > 0 {
			exchanges = append(exchanges, current)
		}
		prevCS, prevCLK = cs, clk
	}
	return exchanges, nil
}
