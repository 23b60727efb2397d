package codec

// Envelope types.
const (
	TypeRequest  = "wire.Request"
	TypeResponse = "wire.Response"
	TypeError    = "wire.Error"
)

// Session and authentication types.
const (
	TypeAuthenticate         = "session.Authenticate"
	TypeAuthenticateResponse = "session.AuthenticateResponse"
	TypeBye                  = "session.Bye"
	TypeByeResponse          = "session.ByeResponse"
)

// Stream setup and lifecycle types.
const (
	TypeSetupStream           = "stream.SetupStream"
	TypeSetupStreamResponse   = "stream.SetupStreamResponse"
	TypeDestroyStream         = "stream.DestroyStream"
	TypeDestroyStreamResponse = "stream.DestroyStreamResponse"
	TypeStreamEnded           = "stream.StreamEnded"
	TypeDataQualityChanged    = "stream.DataQualityChanged"
)

// Description and candidate exchange types.
const (
	TypeSessionDescription           = "peer.SessionDescription"
	TypeIceCandidate                 = "peer.IceCandidate"
	TypeSetRemoteDescription         = "peer.SetRemoteDescription"
	TypeSetRemoteDescriptionResponse = "peer.SetRemoteDescriptionResponse"
	TypeAddIceCandidates             = "peer.AddIceCandidates"
	TypeAddIceCandidatesResponse     = "peer.AddIceCandidatesResponse"
)

// Enum names.
const (
	EnumEncoding          = "wire.Encoding"
	EnumSdpType           = "peer.SdpType"
	EnumDirection         = "stream.Direction"
	EnumDataQualityStatus = "stream.DataQualityStatus"
	EnumDataQualityReason = "stream.DataQualityReason"
)

// APIVersion is the protocol version announced on authentication.
const APIVersion = 3

func str(name string, required bool) Field {
	return Field{Name: name, Kind: KindString, Required: required}
}

func strs(name string) Field {
	return Field{Name: name, Kind: KindString, Repeated: true}
}

func enum(name, ref string, required bool) Field {
	return Field{Name: name, Kind: KindEnum, Ref: ref, Required: required}
}

// NewProtocolRegistry returns a Registry holding every message type used by
// the signaling protocol.
func NewProtocolRegistry() *Registry {
	r := NewRegistry()

	r.RegisterEnum(EnumEncoding, map[string]int64{"msgpack": 0})
	r.RegisterEnum(EnumSdpType, map[string]int64{
		"offer":    0,
		"answer":   1,
		"pranswer": 2,
		"rollback": 3,
	})
	r.RegisterEnum(EnumDirection, map[string]int64{
		"publish":   0,
		"subscribe": 1,
	})
	r.RegisterEnum(EnumDataQualityStatus, map[string]int64{
		"no-data":    0,
		"audio-only": 1,
		"all":        2,
	})
	r.RegisterEnum(EnumDataQualityReason, map[string]int64{
		"none":             0,
		"upload-limited":   1,
		"download-limited": 2,
		"network-limited":  3,
		"public-limited":   4,
	})

	schemas := []Schema{
		{Type: TypeRequest, Fields: []Field{
			str("sessionId", false),
			{Name: "requestId", Kind: KindUint, Required: true},
			str("type", true),
			enum("encoding", EnumEncoding, false),
			{Name: "payload", Kind: KindBytes, Required: true},
		}},
		{Type: TypeResponse, Fields: []Field{
			str("sessionId", false),
			{Name: "requestId", Kind: KindUint, Required: true},
			str("type", true),
			enum("encoding", EnumEncoding, false),
			{Name: "payload", Kind: KindBytes, Required: true},
			{Name: "wallTime", Kind: KindUint, Repeated: true},
		}},
		{Type: TypeError, Fields: []Field{
			str("reason", true),
		}},

		{Type: TypeAuthenticate, Fields: []Field{
			{Name: "apiVersion", Kind: KindInt, Required: true},
			str("clientVersion", true),
			str("deviceId", false),
			str("platform", false),
			str("platformVersion", false),
			str("authenticationToken", true),
			str("sessionId", false),
			strs("capabilities"),
		}},
		{Type: TypeAuthenticateResponse, Fields: []Field{
			str("status", true),
			str("sessionId", false),
			str("redirect", false),
			strs("roles"),
		}},
		{Type: TypeBye, Fields: []Field{
			str("sessionId", true),
			str("reason", false),
		}},
		{Type: TypeByeResponse, Fields: []Field{
			str("status", true),
		}},

		{Type: TypeSessionDescription, Fields: []Field{
			enum("type", EnumSdpType, true),
			str("sdp", true),
		}},
		{Type: TypeIceCandidate, Fields: []Field{
			str("candidate", true),
			str("sdpMid", false),
			{Name: "sdpMLineIndex", Kind: KindUint},
		}},

		{Type: TypeSetupStream, Fields: []Field{
			str("sessionId", true),
			enum("direction", EnumDirection, true),
			str("streamToken", false),
			str("originStreamId", false),
			strs("capabilities"),
			strs("options"),
			strs("tags"),
			{Name: "wallClockBudgetMs", Kind: KindUint},
		}},
		{Type: TypeSetupStreamResponse, Fields: []Field{
			str("status", true),
			str("streamId", false),
			{Name: "negotiate", Kind: KindBool},
			{Name: "offer", Kind: KindMessage, Ref: TypeSessionDescription},
			strs("options"),
		}},
		{Type: TypeDestroyStream, Fields: []Field{
			str("sessionId", false),
			str("streamId", true),
			str("reason", false),
		}},
		{Type: TypeDestroyStreamResponse, Fields: []Field{
			str("status", true),
		}},
		{Type: TypeStreamEnded, Fields: []Field{
			str("streamId", true),
			str("sessionId", false),
			str("reason", false),
		}},
		{Type: TypeDataQualityChanged, Fields: []Field{
			str("streamId", true),
			str("sessionId", false),
			enum("status", EnumDataQualityStatus, true),
			enum("reason", EnumDataQualityReason, true),
		}},

		{Type: TypeSetRemoteDescription, Fields: []Field{
			str("streamId", true),
			{Name: "sessionDescription", Kind: KindMessage, Ref: TypeSessionDescription, Required: true},
		}},
		{Type: TypeSetRemoteDescriptionResponse, Fields: []Field{
			str("status", true),
			{Name: "sessionDescription", Kind: KindMessage, Ref: TypeSessionDescription},
		}},
		{Type: TypeAddIceCandidates, Fields: []Field{
			str("streamId", true),
			{Name: "candidates", Kind: KindMessage, Ref: TypeIceCandidate, Repeated: true},
			strs("options"),
		}},
		{Type: TypeAddIceCandidatesResponse, Fields: []Field{
			str("status", true),
			strs("options"),
		}},
	}

	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			// the table above is static; a failure here is a programming error
			panic(err)
		}
	}

	return r
}
