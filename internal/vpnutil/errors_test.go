// Copyright 2024 the vpn-operator contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vpnutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

func TestClassifyConflict(t *testing.T) {
	raw := apierrors.NewConflict(schema.GroupResource{Resource: "reservations"}, "p-0", fmt.Errorf("boom"))
	err := Classify(raw)
	assert.True(t, IsConflict(err))
	assert.False(t, IsNotFound(err))
}

func TestClassifyNotFound(t *testing.T) {
	raw := apierrors.NewNotFound(schema.GroupResource{Resource: "consumers"}, "m0")
	err := Classify(raw)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsConflict(err))
}

func TestClassifyTransient(t *testing.T) {
	err := Classify(apierrors.NewInternalError(fmt.Errorf("etcd unavailable")))
	assert.False(t, IsConflict(err))
	assert.False(t, IsNotFound(err))
	var te *TransientError
	assert.ErrorAs(t, err, &te)
}

func TestClassifyNilIsNil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

func TestUserInputError(t *testing.T) {
	err := NewUserInputError("missing namespace")
	assert.True(t, IsUserInput(err))
	assert.Equal(t, "missing namespace", err.Error())
}
