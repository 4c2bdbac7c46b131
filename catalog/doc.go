// Package catalog resolves interface identities into dispatch descriptors.
//
// A Reflector reports the raw shape of an interface: methods with ordered,
// typed parameters and results, and properties with access flags. Build
// turns that shape into an InterfaceDescriptor whose type tags are resolved
// once, so proxies dispatch by table lookup instead of reflecting per call.
//
// Type names follow the component model's vocabulary:
//
//	boolean                bool
//	octet                  u8
//	short, unsigned short  s16, u16
//	long, unsigned long    s32, u32
//	long long, ...         s64, u64
//	float, double          f32, f64
//	char                   char
//	string, wstring        string
//
// WIT spellings are accepted as well. Structured kinds cover enums,
// interface references, enumerators, host callbacks and sequences.
//
// The Catalog caches descriptors forever. Concurrent first requests for the
// same identity perform a single reflection round-trip.
package catalog
