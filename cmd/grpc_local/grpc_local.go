package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flock_apiserver/internal/pb"
	"fmt"
	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"os"
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

func printArray(arr ...float64) string {
	str := ""
	for i, num := range arr {
		str += fmt.Sprintf("%.2f", num)
		if i != len(arr)-1 {
			str += ", "
		}
	}
	return str
}

func updateValue(address string, record bool, table *widgets.Table) {
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("did not connect: %v", err)
	}
	defer conn.Close()
	c := pb.NewTrackerServiceClient(conn)

	if st, err := c.GetStatus(context.Background(), &pb.Empty{}); err == nil && !st.Status {
		if _, err := c.SetStatus(context.Background(), &pb.SetStatusRequest{Status: true}); err != nil {
			log.Fatalf("could not start trackers: %v", err)
		}
	}
	res, err := c.ListTrackers(context.Background(), &pb.Empty{})
	if err != nil {
		log.Fatalf("could not list trackers: %v", err)
	}

	tableRowMap := make(map[string]int)
	for _, id := range res.Ids {
		table.Rows = append(table.Rows, []string{id, "", "", ""})
		tableRowMap[id] = len(table.Rows) - 1
	}

	s, err := c.GetFrameStream(context.Background(), &pb.FrameStreamRequest{Cursor: -1})
	if err != nil {
		log.Fatalf("could not get frame stream: %v", err)
	}

	var writer *bufio.Writer
	if record {
		file, err := os.Create(fmt.Sprintf("%v.jsonl", time.Now().Format("2006-01-02T15-04-05")))
		if err != nil {
			log.Fatalf("could not create file: %v", err)
		}
		defer file.Close()
		writer = bufio.NewWriter(file)
		defer writer.Flush()
	}

	var idx = 0
	for {
		resp, err := s.Recv()
		if err != nil {
			log.Fatalf("could not receive frames: %v", err)
		}
		for _, frame := range resp.Frames {
			for _, sample := range frame.Samples {
				row, ok := tableRowMap[sample.Id]
				if !ok {
					continue
				}
				table.Rows[row] = []string{
					sample.Id,
					printArray(sample.PosX, sample.PosY, sample.PosZ),
					printArray(sample.QuatW, sample.QuatX, sample.QuatY, sample.QuatZ),
					fmt.Sprintf("%d", sample.Seq),
				}
			}
			if writer == nil {
				continue
			}
			jsonFrame, err := json.Marshal(frame)
			if err != nil {
				log.Fatalf("Error marshaling frame to JSON: %v", err)
			}
			if _, err = writer.WriteString(string(jsonFrame) + "\n"); err != nil {
				log.Fatalf("Error writing frame to file: %v", err)
			}
			if idx%100 == 0 {
				if err = writer.Flush(); err != nil {
					log.Fatalf("Error flushing buffer: %v", err)
				}
			}
			idx++
		}
		ui.Render(table)
	}
}

func _main(cmd *cobra.Command, args []string) {
	log.Info("Starting")
	if err := ui.Init(); err != nil {
		log.Fatalf("failed to initialize termui: %v", err)
	}
	defer ui.Close()

	t := getTable()
	address, _ := cmd.Flags().GetString("address")
	record, _ := cmd.Flags().GetBool("record")
	go updateValue(address, record, t)
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
	Use:   "grpc_local",
	Short: "grpc_local",
	Long:  "live table of tracker poses streamed from a running flock server",
	Run: func(cmd *cobra.Command, args []string) {
		_main(cmd, args)
	},
}

func main() {
	rootCmd.Flags().String("address", "127.0.0.1:18890", "default dial address")
	rootCmd.Flags().Bool("record", false, "append every frame to a jsonl file")
	rootCmd.Flags().Bool("debug", false, "toggle debug logging")

	err := rootCmd.Execute()
	if err != nil {
		return
	}
}
