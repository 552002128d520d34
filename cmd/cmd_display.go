// cmd_display.go - Tabellen-Ausgabe
// Hauptfunktionen: printTable
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/7blacky7/attndistill/envconfig"
)

// maxCellWidth begrenzt Zellen im Terminal, z.B. eingebettete Konfigurationen
const maxCellWidth = 80

// printTable - Tabelle im Terminal, sonst tabulatorgetrennt fuer Pipes
// oder mit ATTNDISTILL_PLAIN
func printTable(w io.Writer, header []string, rows [][]string) {
	if f, ok := w.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) || envconfig.Plain() {
		fmt.Fprintln(w, strings.Join(header, "\t"))
		for _, row := range rows {
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
		return
	}

	data := make([][]string, len(rows))
	for i, row := range rows {
		data[i] = make([]string, len(row))
		for j, cell := range row {
			data[i][j] = runewidth.Truncate(cell, maxCellWidth, "...")
		}
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
