package utils

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Message ids must be globally unique across the fleet. The id is an opaque
// hex string built from the host MAC address, the process id, a coarse time
// component and a monotonically increasing counter, so two processes on the
// same host and two restarts of the same process never collide.
var (
	messageIDPrefix  = buildMessageIDPrefix()
	messageIDCounter atomic.Uint32
)

func buildMessageIDPrefix() string {
	prefix := make([]byte, 0, 8)
	prefix = append(prefix, hardwareAddr()...)
	prefix = binary.BigEndian.AppendUint16(prefix, uint16(os.Getpid()))
	return strings.ToUpper(hex.EncodeToString(prefix))
}

func hardwareAddr() []byte {
	ifaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range ifaces {
			if len(iface.HardwareAddr) >= 6 && iface.Flags&net.FlagLoopback == 0 {
				return iface.HardwareAddr[:6]
			}
		}
	}
	// No usable interface; a random stand-in keeps ids unique per process.
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		binary.BigEndian.PutUint32(b, uint32(time.Now().UnixNano()))
	}
	return b
}

// CreateUniqueID returns a new globally unique message id.
func CreateUniqueID() string {
	suffix := make([]byte, 0, 8)
	suffix = binary.BigEndian.AppendUint32(suffix, uint32(time.Now().Unix()))
	suffix = binary.BigEndian.AppendUint32(suffix, messageIDCounter.Add(1))
	return messageIDPrefix + strings.ToUpper(hex.EncodeToString(suffix))
}
