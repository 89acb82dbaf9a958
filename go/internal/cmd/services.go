package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/lanewatch/lanewatch/go/clients/auctionrpc"
	"github.com/lanewatch/lanewatch/go/internal/config"
	"github.com/lanewatch/lanewatch/go/internal/gateway"
	"github.com/lanewatch/lanewatch/go/internal/monitor"
	"github.com/lanewatch/lanewatch/go/internal/relay"
	"github.com/lanewatch/lanewatch/go/internal/timeboost"
)

type Services struct {
	Registry *config.NetworkRegistry
	Monitors map[string]*monitor.Monitor
	Gateway  *gateway.Service
	Relay    *relay.Publisher
	clients  []*auctionrpc.Client
}

// setupServices wires one monitor per enabled network, the WebSocket/REST
// gateway over them, and the optional NATS relay. Events flow from each
// monitor into a shared fan-out sink feeding the gateway (and relay).
func setupServices(ctx context.Context, cfg AppConfig) (*Services, error) {
	registry, err := config.LoadNetworkRegistry(cfg.NetworksFile)
	if err != nil {
		return nil, fmt.Errorf("load network registry: %w", err)
	}

	enabled := registry.Enabled()
	if len(enabled) == 0 {
		return nil, fmt.Errorf("no enabled networks in registry")
	}

	services := &Services{
		Registry: registry,
		Monitors: make(map[string]*monitor.Monitor, len(enabled)),
	}

	sink := &fanoutSink{}
	clock := clockwork.NewRealClock()

	for _, network := range enabled {
		url := network.WSURL
		if url == "" {
			url = network.RPCURL
		}
		client, err := auctionrpc.Dial(ctx, url)
		if err != nil {
			services.Close()
			return nil, fmt.Errorf("dial %s: %w", network.Name, err)
		}
		services.clients = append(services.clients, client)
		services.Monitors[network.Name] = monitor.New(network.Name, client, clock, sink)
		log.Info().
			Str("network", network.Name).
			Uint64("chain_id", network.ChainID).
			Str("url", url).
			Msg("monitor configured")
	}

	provider := &monitorStateProvider{registry: registry, monitors: services.Monitors}
	services.Gateway = gateway.NewService(gateway.DefaultConnectionConfig(), provider)
	sink.sinks = append(sink.sinks, services.Gateway)

	if cfg.RelayEnabled {
		relayCfg := relay.DefaultJetStreamConfig()
		relayCfg.URL = cfg.RelayURL
		publisher, err := relay.NewPublisher(relayCfg)
		if err != nil {
			services.Close()
			return nil, fmt.Errorf("create relay publisher: %w", err)
		}
		services.Relay = publisher
		sink.sinks = append(sink.sinks, publisher)
	}

	return services, nil
}

// Close releases the RPC connections and the relay.
func (s *Services) Close() {
	for _, client := range s.clients {
		client.Close()
	}
	if s.Relay != nil {
		s.Relay.Close()
	}
}

// fanoutSink delivers each event to every registered sink. The sink set is
// fixed after setup, so no locking is needed.
type fanoutSink struct {
	sinks []timeboost.Sink
}

func (f *fanoutSink) Publish(evt *timeboost.Event) {
	for _, sink := range f.sinks {
		sink.Publish(evt)
	}
}

// monitorStateProvider implements gateway.StateProvider over the per-network
// monitors.
type monitorStateProvider struct {
	registry *config.NetworkRegistry
	monitors map[string]*monitor.Monitor
}

func (p *monitorStateProvider) NetworkState(ctx context.Context, network string) (monitor.DashboardState, error) {
	m, exists := p.monitors[network]
	if !exists {
		return monitor.DashboardState{}, fmt.Errorf("network %s is not monitored", network)
	}
	return m.Snapshot(), nil
}

func (p *monitorStateProvider) Networks(ctx context.Context) []gateway.NetworkSummary {
	summaries := make([]gateway.NetworkSummary, 0, len(p.monitors))
	for _, network := range p.registry.Enabled() {
		if _, exists := p.monitors[network.Name]; !exists {
			continue
		}
		summaries = append(summaries, gateway.NetworkSummary{
			Name:        network.Name,
			DisplayName: network.DisplayName,
			ChainID:     network.ChainID,
			Explorer:    network.Explorer,
		})
	}
	return summaries
}
