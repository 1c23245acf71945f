// Command cvcalctl is a small polling status client for cvcalsrv, standing
// in for the GUI the spec's own §6 leaves out of scope: it prints the same
// fields a Draw() call would render (state, octave, measured/target
// frequency, completion, error), the same single-purpose-binary shape as
// the teacher's small cmd/*test programs.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

type status struct {
	State     string  `json:"state"`
	Octave    int     `json:"octave"`
	Frequency float64 `json:"frequency"`
	Target    float64 `json:"target"`
	Completed bool    `json:"completed"`
	Error     string  `json:"error,omitempty"`
}

func fetch(base string, channel int) (status, error) {
	var st status
	resp, err := http.Get(fmt.Sprintf("%s/ch/%d/status", base, channel))
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, err
	}
	return st, nil
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "cvcalsrv base URL")
	channel := flag.Int("ch", 0, "channel index to watch")
	interval := flag.Duration("interval", 250*time.Millisecond, "poll interval")
	flag.Parse()

	for {
		st, err := fetch(*addr, *channel)
		if err != nil {
			log.Println("error polling cvcalsrv:", err)
			time.Sleep(*interval)
			continue
		}
		fmt.Fprintf(os.Stdout, "ch%d %-9s octave=%-2d f=%.3fHz target=%.3fHz done=%v",
			*channel, st.State, st.Octave, st.Frequency, st.Target, st.Completed)
		if st.Error != "" {
			fmt.Fprintf(os.Stdout, " error=%s", st.Error)
		}
		fmt.Fprintln(os.Stdout)
		if st.Completed || st.Error != "" {
			return
		}
		time.Sleep(*interval)
	}
}
