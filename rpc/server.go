// Package rpc exposes the node's operations over a JSON HTTP API.
package rpc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nftmarket/core"
	"nftmarket/core/types"
	"nftmarket/observability/metrics"
)

// Server dispatches HTTP requests to the node. All mutating endpoints carry
// the acting address in the request body; the node executes each call as one
// atomic unit.
type Server struct {
	node    *core.Node
	logger  *slog.Logger
	metrics *metrics.MarketMetrics
}

// NewServer creates an RPC server over the given node.
func NewServer(node *core.Node, logger *slog.Logger, m *metrics.MarketMetrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{node: node, logger: logger, metrics: m}
}

// Router assembles the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/listings/{id}", s.handleGetListing)
		r.Post("/listings", s.handlePost)
		r.Post("/listings/{id}/bids", s.handleBid)
		r.Post("/listings/{id}/cancel", s.handleCancel)
		r.Post("/contracts/quote", s.handleRegisterQuote)
		r.Post("/contracts/asset", s.handleRegisterAsset)
		r.Post("/custody/claims", s.handleClaim)
		r.Post("/custody/delegations", s.handleSetDelegate)
		r.Post("/custody/royalties", s.handlePayRoyalty)
		r.Post("/custody/owner", s.handleRealOwner)
		r.Get("/royalty/quote", s.handleRoyaltyQuote)
	})
	return r
}

// tokenIDParam is the wire form of a token identifier: exactly one of the
// fields must be set.
type tokenIDParam struct {
	Index *uint64 `json:"index,omitempty"`
	Hash  *string `json:"hash,omitempty"`
}

func (p tokenIDParam) resolve() (types.TokenID, error) {
	switch {
	case p.Index != nil && p.Hash == nil:
		return types.IndexTokenID(*p.Index), nil
	case p.Hash != nil && p.Index == nil:
		id := types.HashTokenID(*p.Hash)
		return id, id.Validate()
	default:
		return types.TokenID{}, fmt.Errorf("%w: exactly one of index or hash required", types.ErrInvalidTokenIdentifier)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  Code   `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, method string, err error) {
	code := CodeFor(err)
	s.metrics.IncCallFailure(method)
	s.logger.Warn("rpc call failed", "method", method, "code", uint16(code), "err", err)
	writeJSON(w, httpStatus(code), errorBody{Error: err.Error(), Code: code})
}

func (s *Server) writeBadRequest(w http.ResponseWriter, method string, err error) {
	s.metrics.IncCallFailure(method)
	writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: CodeBadRequest})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseAmount(raw string) (*uint256.Int, error) {
	if raw == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(raw)
}

func listingIDFromURL(r *http.Request) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	listingID, err := listingIDFromURL(r)
	if err != nil {
		s.writeBadRequest(w, "listing_get", err)
		return
	}
	listing, err := s.node.Listing(listingID)
	if err != nil {
		s.writeError(w, "listing_get", err)
		return
	}
	tokenID := tokenIDParam{}
	if index, ok := listing.TokenID.Index(); ok {
		tokenID.Index = &index
	} else if hash, ok := listing.TokenID.Hash(); ok {
		tokenID.Hash = &hash
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      listing.ID,
		"owner":   listing.Owner.Hex(),
		"tokenId": tokenID,
		"price":   listing.Price.Dec(),
	})
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller        string       `json:"caller"`
		TokenID       tokenIDParam `json:"tokenId"`
		AssetContract string       `json:"assetContract"`
		QuoteContract string       `json:"quoteContract"`
		Price         string       `json:"price"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, "post", err)
		return
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		s.writeBadRequest(w, "post", err)
		return
	}
	id, err := req.TokenID.resolve()
	if err != nil {
		s.writeBadRequest(w, "post", err)
		return
	}
	assetRef, err := types.ParseAddress(req.AssetContract)
	if err != nil {
		s.writeBadRequest(w, "post", err)
		return
	}
	quoteRef, err := types.ParseAddress(req.QuoteContract)
	if err != nil {
		s.writeBadRequest(w, "post", err)
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		s.writeBadRequest(w, "post", err)
		return
	}
	listingID, err := s.node.Post(caller, id, assetRef, quoteRef, price)
	if err != nil {
		s.writeError(w, "post", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"listingId": listingID})
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	listingID, err := listingIDFromURL(r)
	if err != nil {
		s.writeBadRequest(w, "bid", err)
		return
	}
	var req struct {
		Caller string `json:"caller"`
		Amount string `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, "bid", err)
		return
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		s.writeBadRequest(w, "bid", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeBadRequest(w, "bid", err)
		return
	}
	if err := s.node.Bid(caller, listingID, amount); err != nil {
		s.writeError(w, "bid", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "settled"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	listingID, err := listingIDFromURL(r)
	if err != nil {
		s.writeBadRequest(w, "cancel", err)
		return
	}
	var req struct {
		Caller string `json:"caller"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, "cancel", err)
		return
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		s.writeBadRequest(w, "cancel", err)
		return
	}
	if err := s.node.Cancel(caller, listingID); err != nil {
		s.writeError(w, "cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleRegisterQuote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
		Ref    string `json:"ref"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, "register_quote", err)
		return
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		s.writeBadRequest(w, "register_quote", err)
		return
	}
	ref, err := types.ParseAddress(req.Ref)
	if err != nil {
		s.writeBadRequest(w, "register_quote", err)
		return
	}
	id, err := s.node.RegisterQuoteContract(caller, ref)
	if err != nil {
		s.writeError(w, "register_quote", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"contractId": id})
}

func (s *Server) handleRegisterAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller    string `json:"caller"`
		Ref       string `json:"ref"`
		Custodial string `json:"custodial,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, "register_asset", err)
		return
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		s.writeBadRequest(w, "register_asset", err)
		return
	}
	ref, err := types.ParseAddress(req.Ref)
	if err != nil {
		s.writeBadRequest(w, "register_asset", err)
		return
	}
	var custodial types.Address
	if req.Custodial != "" {
		if custodial, err = types.ParseAddress(req.Custodial); err != nil {
			s.writeBadRequest(w, "register_asset", err)
			return
		}
	}
	id, err := s.node.RegisterAssetContract(caller, ref, custodial)
	if err != nil {
		s.writeError(w, "register_asset", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"contractId": id})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller  string       `json:"caller"`
		TokenID tokenIDParam `json:"tokenId"`
		Owner   string       `json:"owner"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, "claim", err)
		return
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		s.writeBadRequest(w, "claim", err)
		return
	}
	id, err := req.TokenID.resolve()
	if err != nil {
		s.writeBadRequest(w, "claim", err)
		return
	}
	owner, err := types.ParseAddress(req.Owner)
	if err != nil {
		s.writeBadRequest(w, "claim", err)
		return
	}
	if err := s.node.Claim(caller, id, owner); err != nil {
		s.writeError(w, "claim", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "claimed"})
}

func (s *Server) handleSetDelegate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller   string       `json:"caller"`
		TokenID  tokenIDParam `json:"tokenId"`
		Delegate string       `json:"delegate,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, "set_delegate", err)
		return
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		s.writeBadRequest(w, "set_delegate", err)
		return
	}
	id, err := req.TokenID.resolve()
	if err != nil {
		s.writeBadRequest(w, "set_delegate", err)
		return
	}
	var delegate types.Address
	if req.Delegate != "" {
		if delegate, err = types.ParseAddress(req.Delegate); err != nil {
			s.writeBadRequest(w, "set_delegate", err)
			return
		}
	}
	if err := s.node.SetDelegate(caller, id, delegate); err != nil {
		s.writeError(w, "set_delegate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePayRoyalty(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller        string       `json:"caller"`
		AssetContract string       `json:"assetContract"`
		TokenID       tokenIDParam `json:"tokenId"`
		Payer         string       `json:"payer"`
		Source        string       `json:"source"`
		Target        string       `json:"target"`
		PaymentToken  string       `json:"paymentToken"`
		Amount        string       `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, "pay_royalty", err)
		return
	}
	id, err := req.TokenID.resolve()
	if err != nil {
		s.writeBadRequest(w, "pay_royalty", err)
		return
	}
	addrs := make(map[string]types.Address, 6)
	for name, raw := range map[string]string{
		"caller": req.Caller, "asset": req.AssetContract, "payer": req.Payer,
		"source": req.Source, "target": req.Target, "payment": req.PaymentToken,
	} {
		parsed, err := types.ParseAddress(raw)
		if err != nil {
			s.writeBadRequest(w, "pay_royalty", err)
			return
		}
		addrs[name] = parsed
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeBadRequest(w, "pay_royalty", err)
		return
	}
	if err := s.node.PayRoyalty(addrs["caller"], addrs["asset"], id, addrs["payer"], addrs["source"], addrs["target"], addrs["payment"], amount); err != nil {
		s.writeError(w, "pay_royalty", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "paid"})
}

func (s *Server) handleRealOwner(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TokenID tokenIDParam `json:"tokenId"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, "real_owner", err)
		return
	}
	id, err := req.TokenID.resolve()
	if err != nil {
		s.writeBadRequest(w, "real_owner", err)
		return
	}
	owner, err := s.node.RealOwner(id)
	if err != nil {
		s.writeError(w, "real_owner", err)
		return
	}
	delegate, delegated, err := s.node.Delegate(id)
	if err != nil {
		s.writeError(w, "real_owner", err)
		return
	}
	body := map[string]string{"realOwner": owner.Hex()}
	if delegated {
		body["delegate"] = delegate.Hex()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleRoyaltyQuote(w http.ResponseWriter, r *http.Request) {
	amount, err := parseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		s.writeBadRequest(w, "royalty_quote", err)
		return
	}
	quote, err := s.node.RoyaltyQuote(amount)
	if err != nil {
		s.writeError(w, "royalty_quote", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"royalty": quote.Dec()})
}
