// Package web exposes a read-only status dashboard: current balance and open
// positions as JSON, and the trade journal as an SSE stream.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/solsniper/internal/domain"
	"github.com/vadiminshakov/solsniper/internal/storage/state"
)

const tradePollInterval = 2 * time.Second

type tradeReader interface {
	RecordsAfter(index uint64) ([]domain.TradeRecord, error)
	CurrentIndex() uint64
}

type stateReader interface {
	Load() (*state.Document, error)
}

// Server serves the HTML UI, a JSON status endpoint and an SSE trade stream.
type Server struct {
	addr   string
	state  stateReader
	trades tradeReader
	logger *zap.Logger
}

// NewServer creates a dashboard server.
func NewServer(addr string, stateStore stateReader, trades tradeReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{addr: addr, state: stateStore, trades: trades, logger: logger}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/trades/stream", s.handleTradeStream)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("dashboard listening", zap.String("addr", s.addr))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

type statusPosition struct {
	Mint            string     `json:"mint"`
	EntryPriceSol   string     `json:"entry_price_sol"`
	AmountTokens    string     `json:"amount_tokens"`
	HighestPriceSol string     `json:"highest_price_sol"`
	OpenedAt        time.Time  `json:"opened_at"`
	TP1Taken        bool       `json:"tp1_taken"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

type statusResponse struct {
	BalanceSol        string           `json:"balance_sol"`
	DailyStartBalance string           `json:"daily_start_balance"`
	Positions         []statusPosition `json:"positions"`
	LastUpdated       time.Time        `json:"last_updated"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	doc, err := s.state.Load()
	if err != nil {
		s.logger.Error("status: load state", zap.Error(err))
		http.Error(w, "failed to load state", http.StatusInternalServerError)
		return
	}

	resp := statusResponse{
		BalanceSol:        doc.BalanceSol.String(),
		DailyStartBalance: doc.DailyStartBalance.String(),
		Positions:         make([]statusPosition, 0, len(doc.Positions)),
		LastUpdated:       doc.LastUpdated,
	}
	for _, pos := range doc.Positions {
		resp.Positions = append(resp.Positions, statusPosition{
			Mint:            pos.Mint,
			EntryPriceSol:   pos.EntryPriceSol.String(),
			AmountTokens:    pos.AmountTokens.String(),
			HighestPriceSol: pos.HighestPriceSol.String(),
			OpenedAt:        pos.OpenedAt,
			TP1Taken:        pos.TP1Taken,
			ClosedAt:        pos.ClosedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("status: encode response", zap.Error(err))
	}
}

func (s *Server) handleTradeStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// comment heartbeat every 30s so proxies keep the connection
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(tradePollInterval)
	defer pollTicker.Stop()

	lastIndex := uint64(0)
	sendTrades := func() error {
		records, err := s.trades.RecordsAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "event: trade\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
		lastIndex = s.trades.CurrentIndex()
		return nil
	}

	if err := sendTrades(); err != nil {
		s.logger.Error("trade stream initial load", zap.Error(err))
		http.Error(w, "failed to load trades", http.StatusInternalServerError)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendTrades(); err != nil {
				s.logger.Error("trade stream poll", zap.Error(err))
			}
		}
	}
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>solsniper</title>
  <style>
    body { margin:0; padding:2rem; background:#fff; color:#111; font-family:'Space Mono',monospace; }
    #app { max-width:960px; margin:0 auto; border:3px solid #111; padding:2rem; box-shadow:12px 12px 0 rgba(0,0,0,.15); }
    h1 { font-size:.9rem; text-transform:uppercase; letter-spacing:.2em; }
    .stat { border:2px solid #111; padding:1rem; margin-bottom:1rem; background:#f6f6f6; }
    .stat .label { font-size:.6rem; text-transform:uppercase; letter-spacing:.2em; color:#4d4d4d; }
    .stat .value { font-size:1.4rem; font-weight:700; }
    table { width:100%; border-collapse:collapse; font-size:.7rem; }
    th, td { border:1px solid #111; padding:.4rem .6rem; text-align:left; }
    th { background:#f6f6f6; text-transform:uppercase; letter-spacing:.1em; font-size:.6rem; }
    .trade-buy { color:#1b9aaa; font-weight:700; }
    .trade-sell { color:#d7263d; font-weight:700; }
  </style>
</head>
<body>
  <div id="app">
    <h1>solsniper</h1>
    <div class="stat"><div class="label">Balance SOL</div><div class="value" id="balance">—</div></div>
    <div class="stat"><div class="label">Open positions</div><div class="value" id="positions">—</div></div>
    <h1>Trades</h1>
    <table>
      <thead><tr><th>Time</th><th>Side</th><th>Mint</th><th>Price SOL</th><th>Amount</th><th>Reason</th></tr></thead>
      <tbody id="trades"></tbody>
    </table>
  </div>
<script>
const tradesEl = document.getElementById('trades');
const MAX_ROWS = 100;

async function refreshStatus(){
  try{
    const resp = await fetch('/status');
    const status = await resp.json();
    document.getElementById('balance').textContent = status.balance_sol;
    document.getElementById('positions').textContent = status.positions.length;
  }catch(err){
    console.error('status fetch', err);
  }
}

function addTrade(trade){
  const row = document.createElement('tr');
  const cells = [
    new Date(trade.timestamp).toLocaleTimeString([], { hour12:false }),
    trade.side,
    trade.mint,
    trade.price_sol,
    trade.amount_tokens,
    trade.reason || ''
  ];
  cells.forEach((text, i) => {
    const td = document.createElement('td');
    td.textContent = text;
    if(i === 1){ td.className = trade.side === 'buy' ? 'trade-buy' : 'trade-sell'; }
    row.appendChild(td);
  });
  tradesEl.insertBefore(row, tradesEl.firstChild);
  while(tradesEl.children.length > MAX_ROWS){
    tradesEl.removeChild(tradesEl.lastChild);
  }
}

function connectSSE(){
  const source = new EventSource('/trades/stream');
  source.addEventListener('trade', (event) => {
    try{
      addTrade(JSON.parse(event.data));
      refreshStatus();
    }catch(err){
      console.error('trade parse', err);
    }
  });
  source.addEventListener('error', () => {
    source.close();
    setTimeout(connectSSE, 2000);
  });
}

refreshStatus();
setInterval(refreshStatus, 5000);
connectSSE();
</script>
</body>
</html>`
