package rtdriver

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/webtransport-go"
)

// simSocket stands in for the data-loop wakeup PipeWire's client-node
// protocol delivers over a local socket: one 8-byte counter per cycle.
// Here it is carried as a QUIC datagram over a loopback WebTransport
// session, so the RT cycle driver can be exercised end to end without a
// real PipeWire daemon.
//
// Grounded on client/transport.go's SendAudio/ReceiveDatagram pair and
// server/tls.go's self-signed certificate generator.
type simSocket struct {
	server *webtransport.Server
	sess   *webtransport.Session
}

// newSimSocket starts a loopback WebTransport server on addr and dials it,
// returning a socket whose Send/Recv exchange wakeup counters as datagrams.
func newSimSocket(ctx context.Context, addr string) (*simSocket, error) {
	tlsConf, err := simTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("simsocket: tls config: %w", err)
	}

	wtServer := &webtransport.Server{
		H3: http.Server{
			Addr:      addr,
			TLSConfig: tlsConf,
		},
	}
	mux := http.NewServeMux()
	sessCh := make(chan *webtransport.Session, 1)
	mux.HandleFunc("/cycle", func(w http.ResponseWriter, r *http.Request) {
		sess, err := wtServer.Upgrade(w, r)
		if err != nil {
			return
		}
		sessCh <- sess
	})
	wtServer.H3.Handler = mux

	go wtServer.ListenAndServe() //nolint:errcheck // best-effort; Close() on shutdown stops it

	dialer := webtransport.Dialer{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // loopback simulation only
		QUICConfig:      &quic.Config{EnableDatagrams: true},
	}
	_, clientSess, err := dialer.Dial(ctx, "https://"+addr+"/cycle", http.Header{})
	if err != nil {
		wtServer.Close()
		return nil, fmt.Errorf("simsocket: dial: %w", err)
	}

	select {
	case serverSess := <-sessCh:
		_ = serverSess
	case <-time.After(5 * time.Second):
		wtServer.Close()
		return nil, fmt.Errorf("simsocket: server session never arrived")
	}

	return &simSocket{server: wtServer, sess: clientSess}, nil
}

// Send writes one wakeup counter as an unreliable datagram.
func (s *simSocket) Send(counter uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], counter)
	return s.sess.SendDatagram(buf[:])
}

// Recv blocks for the next wakeup counter, or returns ctx's error.
func (s *simSocket) Recv(ctx context.Context) (uint64, error) {
	buf, err := s.sess.ReceiveDatagram(ctx)
	if err != nil {
		return 0, err
	}
	if len(buf) < 8 {
		return 0, fmt.Errorf("simsocket: short datagram (%d bytes)", len(buf))
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// Close tears down both the dialed session and the loopback server.
func (s *simSocket) Close() {
	s.sess.CloseWithError(0, "simsocket closed")
	s.server.Close()
}

func simTLSConfig() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "jackshim-simsocket"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{certDER},
			PrivateKey:  key,
			Leaf:        cert,
		}},
		NextProtos: []string{"h3"},
	}, nil
}
