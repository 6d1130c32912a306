package wire

// This package intentionally has no reflection-based dispatch (compare
// to a typed DBus marshaling library): the codec built on top of
// [Encoder] and [Decoder] always knows its shape from a signature
// string read off the wire or out of introspection XML, never from a
// Go type, so there is no Mapper/EncoderFunc machinery here.
