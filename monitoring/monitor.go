// Package monitoring turns a simulated core into an HTTP server so that its
// state can be inspected and its execution driven from outside.
package monitoring

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/rv32sim/insts"
	"github.com/sarchlab/rv32sim/timing/cache"
	"github.com/sarchlab/rv32sim/timing/core"
	"github.com/sarchlab/rv32sim/timing/memctrl"
	"github.com/sarchlab/rv32sim/timing/pipeline"
)

// MaxMemoryRead is the largest memory window a single request may read.
const MaxMemoryRead = 4096

// Monitor serves the state of a core over HTTP. Every request holds the
// monitor lock while it touches the core.
type Monitor struct {
	lock       sync.Mutex
	core       *core.Core
	portNumber int

	profileDuration time.Duration

	listener net.Listener
	server   *http.Server
}

// NewMonitor creates a monitor for c.
func NewMonitor(c *core.Core) *Monitor {
	return &Monitor{
		core:            c,
		profileDuration: time.Second,
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithProfileDuration sets how long /api/profile samples the CPU.
func (m *Monitor) WithProfileDuration(d time.Duration) *Monitor {
	m.profileDuration = d
	return m
}

// Router returns the HTTP handler serving the monitor API.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/state", m.state)
	r.HandleFunc("/api/regs", m.regs)
	r.HandleFunc("/api/pc", m.pc)
	r.HandleFunc("/api/stats", m.stats)
	r.HandleFunc("/api/mem/{addr}/{len}", m.memory)
	r.HandleFunc("/api/step", m.step)
	r.HandleFunc("/api/run/{n}", m.run)
	r.HandleFunc("/api/core", m.pipelineState)
	r.HandleFunc("/api/core/{field}", m.pipelineField)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	return r
}

// StartServer starts the monitor in the background and returns its URL.
func (m *Monitor) StartServer() string {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	url := fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	go func() {
		err := m.server.Serve(listener)
		if err != nil && err != http.ErrServerClosed {
			dieOnErr(err)
		}
	}()

	return url
}

// OpenInBrowser opens url with the system browser.
func (m *Monitor) OpenInBrowser(url string) error {
	return browser.OpenURL(url + "/api/state")
}

// StopServer shuts the server down.
func (m *Monitor) StopServer() error {
	if m.server == nil {
		return nil
	}

	return m.server.Close()
}

type stateRsp struct {
	PC       uint32  `json:"pc"`
	Cycle    uint64  `json:"cycle"`
	Halted   bool    `json:"halted"`
	ExitCode int64   `json:"exit_code"`
	Fault    string  `json:"fault,omitempty"`
	Time     float64 `json:"time"`
}

func (m *Monitor) snapshotState() stateRsp {
	rsp := stateRsp{
		PC:       m.core.PC(),
		Cycle:    m.core.Stats().Cycles,
		Halted:   m.core.Halted(),
		ExitCode: m.core.ExitCode(),
		Time:     float64(m.core.SimulatedTime()),
	}

	if err := m.core.Fault(); err != nil {
		rsp.Fault = err.Error()
	}

	return rsp
}

func (m *Monitor) state(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	rsp := m.snapshotState()
	m.lock.Unlock()

	writeJSON(w, rsp)
}

type regRsp struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
	Value uint32 `json:"value"`
}

func (m *Monitor) regs(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	values := m.core.Regs()
	m.lock.Unlock()

	rsp := make([]regRsp, 0, len(values))
	for i, v := range values {
		rsp = append(rsp, regRsp{
			Name:  insts.RegName(uint8(i)),
			Index: i,
			Value: v,
		})
	}

	writeJSON(w, rsp)
}

func (m *Monitor) pc(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	pc := m.core.PC()
	m.lock.Unlock()

	fmt.Fprintf(w, "{\"pc\":%d}", pc)
}

type statsRsp struct {
	Core    core.Stats         `json:"core"`
	CPI     float64            `json:"cpi"`
	ICache  cache.Statistics   `json:"icache"`
	DCache  cache.Statistics   `json:"dcache"`
	MemCtrl memctrl.Statistics `json:"memctrl"`
}

func (m *Monitor) stats(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	rsp := statsRsp{
		Core:    m.core.Stats(),
		ICache:  m.core.ICacheStats(),
		DCache:  m.core.DCacheStats(),
		MemCtrl: m.core.MemCtrlStats(),
	}
	m.lock.Unlock()

	rsp.CPI = rsp.Core.CPI()

	writeJSON(w, rsp)
}

type memRsp struct {
	Addr uint32 `json:"addr"`
	Data string `json:"data"`
}

func (m *Monitor) memory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	addr, err := strconv.ParseUint(vars["addr"], 0, 32)
	if err != nil {
		httpError(w, http.StatusBadRequest, "bad address %q", vars["addr"])
		return
	}

	length, err := strconv.ParseUint(vars["len"], 0, 32)
	if err != nil || length == 0 || length > MaxMemoryRead {
		httpError(w, http.StatusBadRequest, "length must be in 1..%d", MaxMemoryRead)
		return
	}

	m.lock.Lock()
	data, err := m.core.ReadMemory(uint32(addr), uint32(length))
	m.lock.Unlock()

	if err != nil {
		httpError(w, http.StatusBadRequest, "%s", err)
		return
	}

	writeJSON(w, memRsp{Addr: uint32(addr), Data: hex.EncodeToString(data)})
}

type runRsp struct {
	Ran   uint64   `json:"ran"`
	Error string   `json:"error,omitempty"`
	State stateRsp `json:"state"`
}

func (m *Monitor) step(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	rsp := runRsp{Ran: 1}
	if m.core.Halted() {
		rsp.Ran = 0
	}
	if err := m.core.Step(); err != nil {
		rsp.Error = err.Error()
	}
	rsp.State = m.snapshotState()
	m.lock.Unlock()

	writeJSON(w, rsp)
}

func (m *Monitor) run(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(mux.Vars(r)["n"], 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "bad cycle count %q", mux.Vars(r)["n"])
		return
	}

	m.lock.Lock()
	ran, err := m.core.Run(n)
	rsp := runRsp{Ran: ran, State: m.snapshotState()}
	if err != nil {
		rsp.Error = err.Error()
	}
	m.lock.Unlock()

	writeJSON(w, rsp)
}

// pipelineView is the serializable snapshot of the pipeline latches.
type pipelineView struct {
	PC    uint32
	IFID  pipeline.IFIDRegister
	IDEX  pipeline.IDEXRegister
	EXMEM pipeline.EXMEMRegister
	MEMWB pipeline.MEMWBRegister
	Regs  []uint32
	Stats pipeline.Statistics
}

func (m *Monitor) snapshotPipeline() *pipelineView {
	p := m.core.Pipeline
	regs := m.core.Regs()

	return &pipelineView{
		PC:    p.PC(),
		IFID:  *p.GetIFID(),
		IDEX:  *p.GetIDEX(),
		EXMEM: *p.GetEXMEM(),
		MEMWB: *p.GetMEMWB(),
		Regs:  regs[:],
		Stats: p.Stats(),
	}
}

func (m *Monitor) pipelineState(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	view := m.snapshotPipeline()
	m.lock.Unlock()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(view)
	serializer.SetMaxDepth(2)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) pipelineField(w http.ResponseWriter, r *http.Request) {
	field := mux.Vars(r)["field"]

	m.lock.Lock()
	view := m.snapshotPipeline()
	m.lock.Unlock()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(view)
	serializer.SetMaxDepth(1)

	if err := serializer.SetEntryPoint([]string{field}); err != nil {
		httpError(w, http.StatusNotFound, "no field %q", field)
		return
	}

	err := serializer.Serialize(w)
	dieOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		httpError(w, http.StatusConflict, "%s", err)
		return
	}

	time.Sleep(m.profileDuration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(data)
	dieOnErr(err)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.WriteHeader(code)
	fmt.Fprintf(w, "Error: "+format, args...)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
