package main

import (
	"flock_apiserver/internal/config"
	"flock_apiserver/internal/manager"
	managerImpl "flock_apiserver/internal/manager/flock"
	"flock_apiserver/internal/sensor"
	"flock_apiserver/internal/server"
	"fmt"
	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"time"
)

var defaultTableValue = [][]string{{"ID", "Position", "Quaternion", "Seq"}}

func getTable() *widgets.Table {
	table := widgets.NewTable()
	table.Rows = defaultTableValue
	table.ColumnWidths = []int{10, 30, 36, 12}
	table.TextStyle = ui.NewStyle(ui.ColorWhite)
	table.TextAlignment = ui.AlignRight
	table.SetRect(0, 0, 90, 36)
	return table
}

func printArray(arr []float64) string {
	str := ""
	for i, num := range arr {
		str += fmt.Sprintf("%.2f", num)
		if i != len(arr)-1 {
			str += ", "
		}
	}
	return str
}

func sampleRow(s *sensor.TrackerSample) []string {
	q := s.Orientation
	return []string{
		s.ID,
		printArray(s.Position[:]),
		printArray([]float64{q.W, q.V[0], q.V[1], q.V[2]}),
		fmt.Sprintf("%d", s.Seq),
	}
}

func updateValue(m manager.Manager, table *widgets.Table) {
	err := m.Start()
	if err != nil {
		log.Panicln(err)
	}
	ids, err := m.ListDev()
	if err != nil {
		log.Panicln(err)
	}
	tableRowMap := make(map[string]int)
	for _, id := range ids {
		table.Rows = append(table.Rows, []string{id, "", "", ""})
		tableRowMap[id] = len(table.Rows) - 1
	}

	for {
		_, res, err := m.Read(-1)
		if err != nil {
			log.Debugln(err)
			time.Sleep(time.Millisecond * 10)
			continue
		}

		for i := range res[0].Samples {
			s := &res[0].Samples[i]
			if row, ok := tableRowMap[s.ID]; ok {
				table.Rows[row] = sampleRow(s)
			}
		}

		ui.Render(table)
		time.Sleep(time.Millisecond * 10)
	}
}

func _main(cmd *cobra.Command, args []string) {
	log.Info("Starting")
	opt := server.NewMainApp(cmd, args).PrepareRun().GetOpt()
	m := managerImpl.NewManager(opt)
	defer func() { _ = m.Close() }()

	if err := ui.Init(); err != nil {
		log.Fatalf("failed to initialize termui: %v", err)
	}
	defer ui.Close()

	t := getTable()
	go updateValue(m, t)

	uiEvents := ui.PollEvents()
	for {
		e := <-uiEvents
		switch e.ID {
		case "q", "<C-c>":
			return
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "serial_playground",
	Short: "serial_playground",
	Long:  "live table of tracker poses read straight from the serial bus",
	Run: func(cmd *cobra.Command, args []string) {
		_main(cmd, args)
	},
}

func main() {
	rootCmd.Flags().String("config", "", "default configuration path")
	rootCmd.Flags().IntP("port", "p", config.DefaultAPIPort, "port that the REST API listens on")
	rootCmd.Flags().StringP("interface", "i", config.DefaultAPIInterface, "interface that the REST API listens on, default to 0.0.0.0")
	rootCmd.Flags().StringP("transport", "t", config.DefaultTransport, "serial backend: bugst, tarm, jacobsa or sim")
	rootCmd.Flags().Bool("debug", false, "toggle debug logging")

	err := rootCmd.Execute()
	if err != nil {
		return
	}
}
