// Command mount_logger records mount status updates to InfluxDB by
// following the lx200mount status WebSocket.
package main

import (
	"log"
	"os"
	"time"

	"github.com/altazimuth/lx200bridge/mount"
	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
)

func main() {
	server := os.Getenv("INFLUX_SERVER")
	if server == "" {
		server = "http://localhost:9999"
	}
	client := influxdb2.NewClient(server, os.Getenv("INFLUX_TOKEN"))
	defer client.Close()
	// Non-blocking write client
	writeApi := client.WriteApi("observatory", "mount.raw")
	defer writeApi.Close()
	go func() {
		for err := range writeApi.Errors() {
			log.Printf("write error: %v", err)
		}
	}()
	for {
		if err := logData(writeApi); err != nil {
			log.Print(err)
		}
		time.Sleep(1 * time.Second)
	}
}

func statusFields(status mount.Status) map[string]interface{} {
	return map[string]interface{}{
		"target_ra":   status.TargetRA,
		"target_dec":  status.TargetDec,
		"current_alt": status.CurrentAlt,
		"current_az":  status.CurrentAz,
		"offset_alt":  status.OffsetAlt,
		"offset_az":   status.OffsetAz,
		"slewing":     status.Slewing,
		"stale":       status.Stale,
		"alt_fault":   status.AltFault,
		"az_fault":    status.AzFault,
	}
}

func logData(writeApi api.WriteApi) error {
	url := os.Getenv("MOUNT_ADDRESS")
	if url == "" {
		url = "ws://localhost:8502/api/ws"
	}
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	for {
		var status mount.Status
		if err := conn.ReadJSON(&status); err != nil {
			return err
		}
		p := influxdb2.NewPoint("mount.status",
			map[string]string{"site": status.SiteName},
			statusFields(status),
			time.Now(),
		)
		writeApi.WritePoint(p)
	}
}
