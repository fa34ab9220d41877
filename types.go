// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

// SnmpVersion identifies the SNMP message format in use on the wire.
type SnmpVersion uint8

// The three message formats this engine can marshal/unmarshal.
const (
	Version1  SnmpVersion = 0x0
	Version2c SnmpVersion = 0x1
	Version3  SnmpVersion = 0x3
)

func (v SnmpVersion) String() string {
	switch v {
	case Version1:
		return "1"
	case Version2c:
		return "2c"
	case Version3:
		return "3"
	default:
		return "unknown"
	}
}

// mpModel is the Message Processing Model identifier carried in target
// configuration: 0 for v1, 1 for v2c, 3 for v3.
type mpModel int32

const (
	mpModelV1 mpModel = 0
	mpModelV2c mpModel = 1
	mpModelV3 mpModel = 3
)

// SecurityModel identifies a registered Security Model.
type SecurityModel int32

// The three Security Models this engine registers by default.
const (
	SecurityModelV1  SecurityModel = 1
	SecurityModelV2c SecurityModel = 2
	SecurityModelUSM SecurityModel = 3
)

// SecurityLevel is the authPriv/authNoPriv/noAuthNoPriv triple from RFC 3411
// §3.4.3, ordered so that a numeric comparison tells you whether a received
// message satisfies a required minimum level.
type SecurityLevel int

const (
	NoAuthNoPriv SecurityLevel = iota
	AuthNoPriv
	AuthPriv
)

func (l SecurityLevel) String() string {
	switch l {
	case NoAuthNoPriv:
		return "noAuthNoPriv"
	case AuthNoPriv:
		return "authNoPriv"
	case AuthPriv:
		return "authPriv"
	default:
		return "unknown"
	}
}

// SnmpV3MsgFlags are the msgFlags octet bits from RFC 3412 §6.
type SnmpV3MsgFlags uint8

const (
	flagAuth       SnmpV3MsgFlags = 0x1
	flagPriv       SnmpV3MsgFlags = 0x2
	flagReportable SnmpV3MsgFlags = 0x4
)

func msgFlagsFor(level SecurityLevel, reportable bool) SnmpV3MsgFlags {
	var f SnmpV3MsgFlags
	switch level {
	case AuthPriv:
		f |= flagAuth | flagPriv
	case AuthNoPriv:
		f |= flagAuth
	}
	if reportable {
		f |= flagReportable
	}
	return f
}

func (f SnmpV3MsgFlags) level() SecurityLevel {
	switch {
	case f&flagPriv != 0:
		return AuthPriv
	case f&flagAuth != 0:
		return AuthNoPriv
	default:
		return NoAuthNoPriv
	}
}

// PDUType describes which SNMP Protocol Data Unit is being carried, using
// the BER application tags from RFC 1157/3416.
type PDUType byte

const (
	Sequence         PDUType = 0x30
	Integer          PDUType = 0x02
	OctetString      PDUType = 0x04
	Null             PDUType = 0x05
	ObjectIdentifier PDUType = 0x06
	IPAddress        PDUType = 0x40
	Counter32        PDUType = 0x41
	Gauge32          PDUType = 0x42
	TimeTicks        PDUType = 0x43
	Opaque           PDUType = 0x44
	Uinteger32       PDUType = 0x47
	NoSuchObject     PDUType = 0x80
	NoSuchInstance   PDUType = 0x81
	EndOfMibView     PDUType = 0x82
	GetRequest       PDUType = 0xa0
	GetNextRequest   PDUType = 0xa1
	GetResponse      PDUType = 0xa2
	SetRequest       PDUType = 0xa3
	Trap             PDUType = 0xa4 // v1
	GetBulkRequest   PDUType = 0xa5
	InformRequest    PDUType = 0xa6
	SNMPv2Trap       PDUType = 0xa7 // v2c, v3
	Report           PDUType = 0xa8
)

func (t PDUType) isEndOfView() bool {
	return t == NoSuchObject || t == NoSuchInstance || t == EndOfMibView
}

// SNMPError is the errorStatus field of a GetResponse PDU, RFC 1157 §4.1.1 /
// RFC 3416 §3.
type SNMPError uint8

const (
	NoError SNMPError = iota
	TooBig
	NoSuchName
	BadValue
	ReadOnly
	GenErr
	NoAccess
	WrongType
	WrongLength
	WrongEncoding
	WrongValue
	NoCreation
	InconsistentValue
	ResourceUnavailable
	CommitFailed
	UndoFailed
	AuthorizationError
	NotWritable
	InconsistentName
)

// ErrorIndication is the stable, per-request failure token a command
// generator callback receives when no errorStatus from the agent applies
// (RFC 3412 statusInformation-equivalent local failures).
type ErrorIndication string

const (
	ErrNone                  ErrorIndication = ""
	ErrRequestTimedOut       ErrorIndication = "requestTimedOut"
	ErrAuthenticationFailure ErrorIndication = "authenticationFailure"
	ErrUnknownEngineID       ErrorIndication = "unknownEngineID"
	ErrUnknownUserName       ErrorIndication = "unknownUserName"
	ErrNotInTimeWindow       ErrorIndication = "notInTimeWindow"
	ErrDecryptionError       ErrorIndication = "decryptionError"
	ErrUnsupportedSecLevel   ErrorIndication = "unsupportedSecurityLevel"
	ErrUnknownSecurityModel  ErrorIndication = "unknownSecurityModel"
	ErrEngineShuttingDown    ErrorIndication = "engineShuttingDown"
	ErrWrongDigest           ErrorIndication = "wrongDigest"
)

// VarBind is a single (name, value) pair carried in a PDU varbind list.
type VarBind struct {
	Name  string // dotted OID, e.g. ".1.3.6.1.2.1.1.1.0"
	Type  PDUType
	Value interface{}
}

// Check panics on a non-nil error: turns marshal-time programming errors
// into a visible panic instead of threading an error return through every
// arithmetic helper.
func (v VarBind) Check(err error) {
	if err != nil {
		panic(err)
	}
}

// Logger is the debug-logging interface every subsystem accepts. It is
// intentionally small so host applications can adapt *log.Logger, a test
// buffer, or nothing at all (NopLogger).
type Logger interface {
	Print(v ...interface{})
	Printf(format string, v ...interface{})
}

type nopLogger struct{}

func (nopLogger) Print(v ...interface{})            {}
func (nopLogger) Printf(format string, v ...interface{}) {}

// NopLogger discards everything written to it.
var NopLogger Logger = nopLogger{}
