package utils

import "github.com/google/uuid"

// GenUserID returns a fresh user id.
func GenUserID() string { return "usr_" + uuid.New().String() }

// GenConvID returns a fresh conversation id.
func GenConvID() string { return "cnv_" + uuid.New().String() }

// GenMsgID returns a fresh message id.
func GenMsgID() string { return "msg_" + uuid.New().String() }

// GenBlobRef returns a fresh opaque blob reference.
func GenBlobRef() string { return "blb_" + uuid.New().String() }
