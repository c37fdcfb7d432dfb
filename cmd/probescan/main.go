// probescan looks for a soil probe on a serial port by trying common baud
// rates and slave addresses until register 0 answers.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/pepper-guardian/guardian/controller/modules/soil"
)

var (
	scanBauds  = []int{9600, 4800, 19200}
	scanSlaves = []int{1, 2, 3}
	portGlobs  = []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/ttyAMA*", "/dev/serial/by-id/*"}
)

// listPorts returns the sorted, de-duplicated device paths matching globs.
func listPorts(globs []string) []string {
	seen := make(map[string]bool)
	var ports []string
	for _, g := range globs {
		matches, err := filepath.Glob(g)
		if err != nil {
			continue
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				ports = append(ports, m)
			}
		}
	}
	sort.Strings(ports)
	return ports
}

func main() {
	port := flag.String("port", "/dev/ttyUSB0", "Serial port of the RS-485 adapter")
	fc := flag.Int("fc", int(soil.HoldingRegisters), "Function code (3 holding, 4 input)")
	timeoutMs := flag.Int("timeout", 1000, "Per-read timeout in milliseconds")
	list := flag.Bool("list", false, "List candidate serial ports and exit")
	flag.Parse()

	if *list {
		ports := listPorts(portGlobs)
		if len(ports) == 0 {
			log.Println("No serial ports found")
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	for _, baud := range scanBauds {
		for _, slave := range scanSlaves {
			cfg := soil.RegisterConfig{
				Port:         *port,
				Baud:         baud,
				SlaveID:      slave,
				FunctionCode: soil.FunctionCode(*fc),
				TimeoutMs:    *timeoutMs,
			}
			fmt.Printf("Trying %s baud %d slave %d ... ", *port, baud, slave)
			raw, err := soil.Probe(cfg, 0)
			if err != nil {
				fmt.Println("no answer:", err)
				continue
			}
			fmt.Printf("register 0 = %d\n", raw)
			fmt.Printf("Found probe: port=%s baud=%d slave_id=%d function_code=%d\n", *port, baud, slave, *fc)
			return
		}
	}
	log.Println("No probe answered on", *port)
	os.Exit(1)
}
