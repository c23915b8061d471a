package protocol

// Translation is direction-dependent, not a single symmetric table.
// Cancellation is the asymmetric case: a client cancelling a subscription
// sends stop (legacy) or complete (modern), while a server announcing the
// end of one sends complete in both dialects. A client-bound complete
// toward a legacy server must therefore become stop, but a server-bound
// complete stays complete regardless of dialect.

// Client-originated frame tables.
var clientLegacyToModern = map[FrameType]FrameType{
	TypeStart: TypeSubscribe,
	TypeStop:  TypeComplete,
}

var clientModernToLegacy = map[FrameType]FrameType{
	TypeSubscribe: TypeStart,
	TypeComplete:  TypeStop,
}

// Server-originated frame tables.
var serverLegacyToModern = map[FrameType]FrameType{
	TypeData: TypeNext,
}

var serverModernToLegacy = map[FrameType]FrameType{
	TypeNext: TypeData,
}

// TranslateClientFrame retypes a client-originated frame for a server
// speaking the target dialect. The translation contract is lossless for the
// frame body: ID and Payload are carried through untouched and only the Type
// field may change. Frames that already fit the target dialect, or that have
// no counterpart there (keep-alives, connection_error), come back unchanged;
// the router handles those by policy before translation.
func TranslateClientFrame(f Frame, target Dialect) Frame {
	switch target {
	case DialectModern:
		return retype(f, clientLegacyToModern)
	case DialectLegacy:
		return retype(f, clientModernToLegacy)
	default:
		return f
	}
}

// TranslateServerFrame retypes a server-originated frame for a client
// speaking the target dialect, under the same lossless contract.
func TranslateServerFrame(f Frame, target Dialect) Frame {
	switch target {
	case DialectModern:
		return retype(f, serverLegacyToModern)
	case DialectLegacy:
		return retype(f, serverModernToLegacy)
	default:
		return f
	}
}

func retype(f Frame, table map[FrameType]FrameType) Frame {
	if mapped, ok := table[f.Type]; ok {
		f.Type = mapped
	}
	return f
}
