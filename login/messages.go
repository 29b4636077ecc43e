package login

// This file contains the login server records, their encoders and decoders.

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	tnet "badc0de.net/pkg/go-ragnarok/net"
	"badc0de.net/pkg/go-ragnarok/net/packets"
)

const (
	IDLogin              = 0x0064 // CA_LOGIN
	IDAcceptLogin        = 0x0069 // AC_ACCEPT_LOGIN
	IDRefuseLogin        = 0x006a // AC_REFUSE_LOGIN
	IDNotifyBan          = 0x0081 // SC_NOTIFY_BAN
	IDConnectInfoChanged = 0x0200 // CA_CONNECT_INFO_CHANGED
)

const (
	nameSize      = 24
	lastTimeSize  = 26
	serverSize    = 20
	blockDateSize = 20

	acceptHeaderSize = 4 + 4 + 4 + 4 + lastTimeSize + 1
	serverEntrySize  = 4 + 2 + serverSize + 2 + 2 + 2
)

// Login asks the login server to authenticate an account.
type Login struct {
	Version    uint32
	Username   string
	Password   string
	ClientType uint8
}

func (Login) PacketID() uint16 { return IDLogin }

func (l Login) Encode(w *tnet.Message) error {
	if err := w.WriteUint32(l.Version); err != nil {
		return err
	}
	if err := w.WriteFixedString(l.Username, nameSize); err != nil {
		return err
	}
	if err := w.WriteFixedString(l.Password, nameSize); err != nil {
		return err
	}
	return w.WriteUint8(l.ClientType)
}

// ServerEntry is one character server offered after a successful login.
type ServerEntry struct {
	IP       uint32 // little-endian IPv4, see tnet.LongToIP
	Port     uint16
	Name     string
	Users    uint16
	State    uint16
	Property uint16
}

// Addr returns the server address in host:port form.
func (s ServerEntry) Addr() string {
	return fmt.Sprintf("%s:%d", tnet.LongToIP(s.IP), s.Port)
}

// serverEntryWire is the on-the-wire layout of ServerEntry.
type serverEntryWire struct {
	IP       uint32
	Port     uint16
	Name     [serverSize]byte
	Users    uint16
	State    uint16
	Property uint16
}

// AcceptLogin carries the session and the character server list.
type AcceptLogin struct {
	AuthCode  uint32
	AccountID uint32
	UserLevel uint32
	LastIP    uint32
	LastTime  string
	Sex       uint8
	Servers   []ServerEntry
}

func (AcceptLogin) PacketID() uint16 { return IDAcceptLogin }

func (a AcceptLogin) Encode(w *tnet.Message) error {
	for _, v := range []uint32{a.AuthCode, a.AccountID, a.UserLevel, a.LastIP} {
		if err := w.WriteUint32(v); err != nil {
			return err
		}
	}
	if err := w.WriteFixedString(a.LastTime, lastTimeSize); err != nil {
		return err
	}
	if err := w.WriteUint8(a.Sex); err != nil {
		return err
	}
	for _, s := range a.Servers {
		e := serverEntryWire{IP: s.IP, Port: s.Port, Users: s.Users, State: s.State, Property: s.Property}
		copy(e.Name[:], s.Name)
		if err := binary.Write(w, binary.LittleEndian, &e); err != nil {
			return err
		}
	}
	return nil
}

func DecodeAcceptLogin(msg *tnet.Message) (packets.Record, error) {
	if msg.Len() < acceptHeaderSize {
		return nil, errors.Errorf("AC_ACCEPT_LOGIN: %d bytes is shorter than the header", msg.Len())
	}
	if (msg.Len()-acceptHeaderSize)%serverEntrySize != 0 {
		return nil, errors.Errorf("AC_ACCEPT_LOGIN: server list of %d bytes is not a multiple of %d", msg.Len()-acceptHeaderSize, serverEntrySize)
	}

	var a AcceptLogin
	var err error
	for _, p := range []*uint32{&a.AuthCode, &a.AccountID, &a.UserLevel, &a.LastIP} {
		if *p, err = msg.ReadUint32(); err != nil {
			return nil, err
		}
	}
	if a.LastTime, err = msg.ReadFixedString(lastTimeSize); err != nil {
		return nil, err
	}
	if a.Sex, err = msg.ReadUint8(); err != nil {
		return nil, err
	}

	for msg.Len() > 0 {
		var e serverEntryWire
		if err := binary.Read(msg, binary.LittleEndian, &e); err != nil {
			return nil, errors.Wrap(err, "AC_ACCEPT_LOGIN: reading server entry")
		}
		a.Servers = append(a.Servers, ServerEntry{
			IP:       e.IP,
			Port:     e.Port,
			Name:     cString(e.Name[:]),
			Users:    e.Users,
			State:    e.State,
			Property: e.Property,
		})
	}
	return a, nil
}

// RefuseLogin tells why a login was rejected.
type RefuseLogin struct {
	Code      uint8
	BlockDate string
}

func (RefuseLogin) PacketID() uint16 { return IDRefuseLogin }

func (r RefuseLogin) Encode(w *tnet.Message) error {
	if err := w.WriteUint8(r.Code); err != nil {
		return err
	}
	return w.WriteFixedString(r.BlockDate, blockDateSize)
}

var refuseReasons = map[uint8]string{
	0:  "unregistered account",
	1:  "incorrect password",
	2:  "account expired",
	3:  "rejected from server",
	4:  "account blocked",
	5:  "client version not accepted",
	6:  "account blocked until %s",
	7:  "server is overpopulated",
	99: "account erased",
}

// Reason describes the refusal.
func (r RefuseLogin) Reason() string {
	s, ok := refuseReasons[r.Code]
	switch {
	case !ok:
		return fmt.Sprintf("refused with code %d", r.Code)
	case r.Code == 6:
		return fmt.Sprintf(s, r.BlockDate)
	}
	return s
}

func DecodeRefuseLogin(msg *tnet.Message) (packets.Record, error) {
	var r RefuseLogin
	var err error
	if r.Code, err = msg.ReadUint8(); err != nil {
		return nil, err
	}
	if r.BlockDate, err = msg.ReadFixedString(blockDateSize); err != nil {
		return nil, err
	}
	return r, nil
}

// NotifyBan is sent by any server right before it drops the connection.
type NotifyBan struct {
	Code uint8
}

func (NotifyBan) PacketID() uint16 { return IDNotifyBan }

func (n NotifyBan) Encode(w *tnet.Message) error {
	return w.WriteUint8(n.Code)
}

func DecodeNotifyBan(msg *tnet.Message) (packets.Record, error) {
	code, err := msg.ReadUint8()
	if err != nil {
		return nil, err
	}
	return NotifyBan{Code: code}, nil
}

// ConnectInfoChanged keeps an idle login session alive.
type ConnectInfoChanged struct {
	Username string
}

func (ConnectInfoChanged) PacketID() uint16 { return IDConnectInfoChanged }

func (c ConnectInfoChanged) Encode(w *tnet.Message) error {
	return w.WriteFixedString(c.Username, nameSize)
}

// Descriptors lists the records a login server sends.
func Descriptors() []packets.Descriptor {
	return []packets.Descriptor{
		{ID: IDAcceptLogin, Name: "AC_ACCEPT_LOGIN", Length: tnet.Variable, Decode: DecodeAcceptLogin},
		{ID: IDRefuseLogin, Name: "AC_REFUSE_LOGIN", Length: 1 + blockDateSize, Decode: DecodeRefuseLogin},
		{ID: IDNotifyBan, Name: "SC_NOTIFY_BAN", Length: 1, Decode: DecodeNotifyBan},
	}
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
