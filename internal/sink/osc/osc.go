// Package osc forwards tracker frames to an OSC receiver, one message per
// tracker at <address>/<slot> carrying x y z qw qx qy qz as float32.
package osc

import (
	"context"
	"flock_apiserver/internal/config"
	"flock_apiserver/internal/manager"
	"flock_apiserver/internal/sensor"
	"fmt"
	gosc "github.com/hypebeast/go-osc/osc"
	log "github.com/sirupsen/logrus"
	"strings"
	"sync/atomic"
)

// Sender is the part of an OSC client the publisher needs.
type Sender interface {
	Send(packet gosc.Packet) error
}

type Publisher struct {
	address string
	client  Sender
	sent    atomic.Int64
	errors  atomic.Int64
}

func NewPublisher(opt *config.OSCOpt) *Publisher {
	return NewPublisherWithSender(opt.Address, gosc.NewClient(opt.Host, opt.Port))
}

func NewPublisherWithSender(address string, client Sender) *Publisher {
	return &Publisher{
		address: strings.TrimRight(address, "/"),
		client:  client,
	}
}

// Messages builds the messages for one frame.
func (p *Publisher) Messages(f *sensor.Frame) []*gosc.Message {
	res := make([]*gosc.Message, 0, len(f.Samples))
	for i := range f.Samples {
		s := &f.Samples[i]
		msg := gosc.NewMessage(fmt.Sprintf("%s/%d", p.address, s.Slot))
		msg.Append(float32(s.Position[0]))
		msg.Append(float32(s.Position[1]))
		msg.Append(float32(s.Position[2]))
		msg.Append(float32(s.Orientation.W))
		msg.Append(float32(s.Orientation.V[0]))
		msg.Append(float32(s.Orientation.V[1]))
		msg.Append(float32(s.Orientation.V[2]))
		res = append(res, msg)
	}
	return res
}

func (p *Publisher) Publish(f *sensor.Frame) {
	for _, msg := range p.Messages(f) {
		if err := p.client.Send(msg); err != nil {
			if p.errors.Add(1) == 1 {
				log.Warnf("osc send to %s failed: %v", msg.Address, err)
			} else {
				log.Debugf("osc send to %s failed: %v", msg.Address, err)
			}
			continue
		}
		p.sent.Add(1)
	}
}

// Sent returns how many messages were delivered to the client.
func (p *Publisher) Sent() int64 {
	return p.sent.Load()
}

// Run forwards every frame m publishes until ctx ends or m is closed.
func (p *Publisher) Run(ctx context.Context, m manager.Manager) {
	ch := m.Subscribe()
	log.Infof("osc output on %s", p.address)
	for {
		select {
		case <-ctx.Done():
			go m.Unsubscribe(ch)
			for range ch {
			}
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if f, ok := msg.(*sensor.Frame); ok {
				p.Publish(f)
			}
		}
	}
}
