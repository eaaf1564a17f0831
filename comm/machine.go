// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"context"
	"encoding/gob"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bigmachine"
)

func init() {
	gob.Register(&HubService{})
}

// HubService is a bigmachine service that hosts hubs for groups of
// ranks running on other machines. Hubs are keyed by a group name and
// created on first use. HubService should be installed under the name
// "Hub".
type HubService struct {
	// Exported just satisfies gob's persnickety nature: we need at least
	// one exported field.
	Exported struct{}

	mu   sync.Mutex
	hubs map[string]*Hub
}

// Init implements bigmachine's service initialization.
func (s *HubService) Init(b *bigmachine.B) error {
	s.hubs = make(map[string]*Hub)
	return nil
}

func (s *HubService) hub(group string, size int) *Hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hubs == nil {
		s.hubs = make(map[string]*Hub)
	}
	h := s.hubs[group]
	if h == nil {
		h = NewHub(size)
		s.hubs[group] = h
	}
	return h
}

// Header identifies the caller of a hub method.
type Header struct {
	Group string
	Size  int
	Rank  int
}

// ExchangeRequest is the argument to HubService.Exchange.
type ExchangeRequest struct {
	Header
	Seq uint64
	Out [][]byte
}

// ExchangeReply is the reply of HubService.Exchange.
type ExchangeReply struct {
	In [][]byte
}

// PostRequest is the argument to HubService.Post.
type PostRequest struct {
	Header
	Dst int
	P   []byte
}

// TakeRequest is the argument to HubService.Take.
type TakeRequest struct {
	Header
	Src int
}

// Exchange performs an exchange on the named group's hub.
func (s *HubService) Exchange(ctx context.Context, req ExchangeRequest, reply *ExchangeReply) error {
	in, err := s.hub(req.Group, req.Size).Exchange(ctx, req.Rank, req.Seq, req.Out)
	reply.In = in
	return err
}

// Post posts a point-to-point message on the named group's hub.
func (s *HubService) Post(ctx context.Context, req PostRequest, _ *struct{}) error {
	return s.hub(req.Group, req.Size).Post(req.Rank, req.Dst, req.P)
}

// Take receives a point-to-point message from the named group's hub.
func (s *HubService) Take(ctx context.Context, req TakeRequest, p *[]byte) (err error) {
	*p, err = s.hub(req.Group, req.Size).Take(ctx, req.Src, req.Rank)
	return
}

// Release closes the named group's hub and forgets it.
func (s *HubService) Release(ctx context.Context, group string, _ *struct{}) error {
	s.mu.Lock()
	h := s.hubs[group]
	delete(s.hubs, group)
	s.mu.Unlock()
	if h != nil {
		h.Close(errors.E(errors.Fatal, "comm: group", group, "released"))
		log.Debug.Printf("comm: released hub %s", group)
	}
	return nil
}

// Dial returns a communicator for the provided rank of a group whose
// hub is hosted by the HubService on the machine at addr.
func Dial(ctx context.Context, b *bigmachine.B, addr, group string, rank, size int) (Communicator, error) {
	m, err := b.Dial(ctx, addr)
	if err != nil {
		return nil, errors.E(errors.Fatal, "comm: dial hub", addr, err)
	}
	return &remote{m: m, hdr: Header{Group: group, Size: size, Rank: rank}}, nil
}

type remote struct {
	m   *bigmachine.Machine
	hdr Header
	seq uint64
}

func (r *remote) Rank() int { return r.hdr.Rank }
func (r *remote) Size() int { return r.hdr.Size }

func (r *remote) Exchange(ctx context.Context, out [][]byte) ([][]byte, error) {
	req := ExchangeRequest{Header: r.hdr, Seq: r.seq, Out: out}
	r.seq++
	var reply ExchangeReply
	if err := r.m.Call(ctx, "Hub.Exchange", req, &reply); err != nil {
		return nil, errors.E(errors.Fatal, "comm: exchange", err)
	}
	in := make([][]byte, r.hdr.Size)
	copy(in, reply.In)
	return in, nil
}

func (r *remote) Send(ctx context.Context, dst int, p []byte) error {
	req := PostRequest{Header: r.hdr, Dst: dst, P: p}
	if err := r.m.Call(ctx, "Hub.Post", req, nil); err != nil {
		return errors.E(errors.Fatal, "comm: send", err)
	}
	return nil
}

func (r *remote) Recv(ctx context.Context, src int) ([]byte, error) {
	var p []byte
	if err := r.m.Call(ctx, "Hub.Take", TakeRequest{Header: r.hdr, Src: src}, &p); err != nil {
		return nil, errors.E(errors.Fatal, "comm: recv", err)
	}
	return p, nil
}
