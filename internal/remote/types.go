package remote

// RequestType enumerates the request-side message catalogue of §4.5,
// sent as the single type byte of every client-originated wire.Frame.
// The 27 codes defined here run 0..=26, within the 0..=31 range of §6.
type RequestType byte

const (
	ReqReadAccess RequestType = iota
	ReqWriteAccess
	ReqQuery
	ReqGetMSet
	ReqTermExists
	ReqTermFreq
	ReqCollFreq
	ReqDocLength
	ReqUniqueTerms
	ReqFreqs
	ReqGetMetadata
	ReqDocument
	ReqAddDocument
	ReqReplaceDocument
	ReqReplaceDocumentTerm
	ReqDeleteDocument
	ReqDeleteDocumentTerm
	ReqSetMetadata
	ReqAddSpelling
	ReqRemoveSpelling
	ReqCommit
	ReqCancel
	ReqAllTerms
	ReqTermList
	ReqPositionList
	ReqPostList
	ReqMetadataKeyList
)

func (t RequestType) String() string {
	names := [...]string{
		"ReadAccess", "WriteAccess", "Query", "GetMSet", "TermExists",
		"TermFreq", "CollFreq", "DocLength", "UniqueTerms", "Freqs",
		"GetMetadata", "Document", "AddDocument", "ReplaceDocument",
		"ReplaceDocumentTerm", "DeleteDocument", "DeleteDocumentTerm",
		"SetMetadata", "AddSpelling", "RemoveSpelling", "Commit",
		"Cancel", "AllTerms", "TermList", "PositionList", "PostList",
		"MetadataKeyList",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return "Unknown"
}

// ReplyType enumerates the reply-side message catalogue: 11 codes,
// 0..=10, within the 0..=22 range of §6.
type ReplyType byte

const (
	RepUpdate ReplyType = iota
	RepStats
	RepMSet
	RepBool
	RepUint32
	RepString
	RepDocument
	RepDone
	RepListEntry
	RepTxResult
	RepException
)

func (t ReplyType) String() string {
	names := [...]string{
		"Update", "Stats", "MSet", "Bool", "Uint32", "String",
		"Document", "Done", "ListEntry", "TxResult", "Exception",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return "Unknown"
}
